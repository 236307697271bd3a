package types

import "time"

// IngestionKey is a per-project write-only credential embedded in job
// runners ("DSN" scheme). The raw key is never stored; lookups go through
// the SHA-256 hash. Revocation is a soft delete.
type IngestionKey struct {
	ID             string
	ProjectID      int64
	OrganizationID int64
	KeyHash        string
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

// APIToken is a full-access organization token ("Bearer" scheme). Tokens
// may carry an expiry; expired tokens are rejected with a distinct error
// code so clients can tell rotation from revocation.
type APIToken struct {
	ID             string
	OrganizationID int64
	TokenHash      string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
}
