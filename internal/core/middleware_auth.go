package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cronwatch/internal/types"
)

// Credentials is the parsed Authorization header.
//
// Two schemes are accepted:
//   - "Bearer <token>": organization API tokens; resolves to a full Actor.
//   - "DSN <key>": per-project ingestion keys; resolves to a restricted
//     Actor that may only submit check-ins and read back the created GUID.
type Credentials struct {
	Scheme string
	Token  string
}

// Authenticator decouples the HTTP layer from the credential store,
// allowing for easy mocking in tests.
type Authenticator interface {
	// Authenticate resolves the parsed credentials to an Actor.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid if the credential is malformed, unknown,
	//     or revoked.
	//   - ErrCodeAuthTokenExpired if the credential exists but has expired.
	Authenticate(ctx context.Context, creds Credentials) (*types.Actor, error)
}

// authPublicPaths lists URL paths exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health": true,
}

// AuthMiddleware resolves the Authorization header to an Actor and injects
// it into the request context. Requests without valid credentials get a 401
// with a distinct error code:
//   - auth_token_missing: no Authorization header or empty credential.
//   - auth_token_invalid: unknown scheme, malformed, revoked, or unknown key.
//   - auth_token_expired: credential exists but has expired.
//
// If the Authenticator field on Server is nil (e.g. during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		creds, ok := parseAuthorization(authHeader)
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "unsupported authorization scheme")
			return
		}
		if creds.Token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "credential is required")
			return
		}

		actor, err := s.Authenticator.Authenticate(r.Context(), creds)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid credentials")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseAuthorization splits the Authorization header into scheme and token.
// Scheme matching is case-insensitive per RFC 7235; only Bearer and DSN are
// recognized.
func parseAuthorization(header string) (Credentials, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return Credentials{}, false
	}
	switch {
	case strings.EqualFold(scheme, "Bearer"):
		return Credentials{Scheme: "Bearer", Token: strings.TrimSpace(token)}, true
	case strings.EqualFold(scheme, "DSN"):
		return Credentials{Scheme: "DSN", Token: strings.TrimSpace(token)}, true
	}
	return Credentials{}, false
}

// handleAuthError inspects the error from Authenticate and writes the 401
// with the matching error code.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: credential expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "credential has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: credential invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid credentials")
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}

// RequireFullAccess returns middleware rejecting restricted (ingestion key)
// actors with 403. Mounted on read endpoints: ingestion keys may submit
// check-ins but never read monitor history.
func (s *Server) RequireFullAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "authentication required")
			return
		}

		if actor.Restricted() {
			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionRestrictedKey),
					Message:   "ingestion keys may not access this endpoint",
					RequestID: types.GetRequestID(r.Context()),
				},
			}
			JSON(w, r, http.StatusForbidden, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}
