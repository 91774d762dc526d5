// internal/repository/db_executor.go
package repository

import (
	"context"
	"database/sql"
)

// DBExecutor is what the SQL repositories run statements on: the pool for a
// top-level Store, the open *sqlx.Tx for the Store handed to WithinTx.
type DBExecutor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
