// Package auth resolves API credentials to Actors for the ingestion API.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"cronwatch/internal/core"
	"cronwatch/internal/types"
)

// ErrCredentialNotFound is returned by CredentialRepo implementations when
// no record matches the hash. The service maps it to a generic invalid
// credential error so callers cannot probe for key existence.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepo defines the lookups needed to resolve credentials.
// Raw tokens are never persisted; both lookups are by SHA-256 hash.
type CredentialRepo interface {
	GetIngestionKeyByHash(ctx context.Context, keyHash string) (*types.IngestionKey, error)
	GetAPITokenByHash(ctx context.Context, tokenHash string) (*types.APIToken, error)
}

// HashToken produces a hex-encoded SHA-256 hash of a raw credential.
// SHA-256 keeps the hash searchable in the database; salted hashes would
// make lookup-by-token impossible.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Service implements core.Authenticator against the credential store.
type Service struct {
	repo   CredentialRepo
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates the credential resolver.
func NewService(repo CredentialRepo, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clock, logger: logger}
}

// Authenticate resolves parsed credentials to an Actor.
//
//   - DSN keys resolve to restricted ingestion-key Actors scoped to one
//     project. Revoked keys are indistinguishable from unknown ones.
//   - Bearer tokens resolve to full Actors scoped to an organization.
//     Expired tokens get a distinct error code.
func (s *Service) Authenticate(ctx context.Context, creds core.Credentials) (*types.Actor, error) {
	switch creds.Scheme {
	case "DSN":
		return s.resolveIngestionKey(ctx, creds.Token)
	case "Bearer":
		return s.resolveAPIToken(ctx, creds.Token)
	}
	return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unsupported credential scheme", nil)
}

func (s *Service) resolveIngestionKey(ctx context.Context, token string) (*types.Actor, error) {
	key, err := s.repo.GetIngestionKeyByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid ingestion key", nil)
		}
		return nil, err
	}
	if key.RevokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid ingestion key", nil)
	}

	return &types.Actor{
		ID:             key.ID,
		Type:           types.ActorTypeIngestionKey,
		OrganizationID: key.OrganizationID,
		ProjectID:      key.ProjectID,
	}, nil
}

func (s *Service) resolveAPIToken(ctx context.Context, token string) (*types.Actor, error) {
	rec, err := s.repo.GetAPITokenByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)
		}
		return nil, err
	}
	if rec.RevokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(s.clock.Now()) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", nil)
	}

	return &types.Actor{
		ID:             rec.ID,
		Type:           types.ActorTypeUser,
		OrganizationID: rec.OrganizationID,
	}, nil
}
