// Package db provides PostgreSQL-backed repository implementations for the
// cronwatch ingestion engine. All repositories accept a DBTX interface that
// is satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
//
// The check-in write path relies on two storage primitives:
//
//   - Conditional state updates: monitor and monitor_environment rows are
//     only updated WHERE the stored last_checkin has not advanced past the
//     incoming timestamp, so concurrent check-ins converge on the latest
//     one regardless of arrival order.
//   - Unique-constraint upserts: environments and monitor_environments are
//     created with INSERT ... ON CONFLICT DO NOTHING followed by a
//     re-select, making concurrent get-or-create races idempotent.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
