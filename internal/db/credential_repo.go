package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cronwatch/internal/auth"
	"cronwatch/internal/types"
)

// CredentialRepository provides hash-based lookups for ingestion keys and
// API tokens. Key and token management (creation, rotation, revocation)
// belongs to the external management flow; this repository only reads.
type CredentialRepository struct {
	db DBTX
}

// NewCredentialRepository creates a CredentialRepository backed by the given
// database connection.
func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetIngestionKeyByHash returns the ingestion key whose SHA-256 hash matches.
// Returns auth.ErrCredentialNotFound when no key matches; revoked keys are
// still returned so the caller decides how to surface them.
func (r *CredentialRepository) GetIngestionKeyByHash(ctx context.Context, keyHash string) (*types.IngestionKey, error) {
	var key types.IngestionKey
	err := r.db.QueryRow(ctx,
		`SELECT id, project_id, organization_id, key_hash, created_at, revoked_at
		 FROM ingestion_keys
		 WHERE key_hash = $1`,
		keyHash,
	).Scan(&key.ID, &key.ProjectID, &key.OrganizationID, &key.KeyHash, &key.CreatedAt, &key.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrCredentialNotFound
		}
		return nil, mapDBError("get ingestion key", err)
	}
	return &key, nil
}

// GetAPITokenByHash returns the API token whose SHA-256 hash matches.
// Returns auth.ErrCredentialNotFound when no token matches.
func (r *CredentialRepository) GetAPITokenByHash(ctx context.Context, tokenHash string) (*types.APIToken, error) {
	var tok types.APIToken
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, token_hash, created_at, expires_at, revoked_at
		 FROM api_tokens
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(&tok.ID, &tok.OrganizationID, &tok.TokenHash, &tok.CreatedAt, &tok.ExpiresAt, &tok.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrCredentialNotFound
		}
		return nil, mapDBError("get api token", err)
	}
	return &tok, nil
}

var _ auth.CredentialRepo = (*CredentialRepository)(nil)
