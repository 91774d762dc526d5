// pkg/db/transaction_manager.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// TxController defines methods for controlling a database transaction.
// *sqlx.Tx implicitly implements this interface.
type TxController interface {
	Commit() error
	Rollback() error
}

// DBTxBeginner defines the interface for beginning transactions.
// *sqlx.DB implements this.
type DBTxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// BeginTx starts a new database transaction.
func BeginTx(ctx context.Context, dbConn DBTxBeginner, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := dbConn.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CommitTx commits the transaction.
func CommitTx(tx TxController) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTx rolls back the transaction. It is meant to be deferred, so a
// rollback after a successful commit (sql.ErrTxDone) is ignored.
func RollbackTx(tx TxController) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("Error rolling back transaction", "error", err)
	}
}

// RunInTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func RunInTx(ctx context.Context, dbConn DBTxBeginner, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := BeginTx(ctx, dbConn, opts)
	if err != nil {
		return err
	}
	defer RollbackTx(tx)

	if err := fn(tx); err != nil {
		return err
	}
	return CommitTx(tx)
}
