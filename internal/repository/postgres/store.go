// internal/repository/postgres/store.go
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"ridewallet/internal/repository"
	"ridewallet/pkg/db"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Store implements repository.Store for PostgreSQL. A Store built with NewStore
// runs each statement on the pool; the Store handed to WithinTx callbacks runs
// everything on one *sqlx.Tx.
type Store struct {
	db *sqlx.DB              // nil inside a transaction
	q  repository.DBExecutor // *sqlx.DB or *sqlx.Tx

	wallets      *WalletRepository
	transactions *TransactionRepository
	settlements  *SettlementRepository
	drivers      *DriverRepository
}

// NewStore creates a pool-backed Store.
func NewStore(conn *sqlx.DB) *Store {
	return newStore(conn, conn)
}

func newStore(conn *sqlx.DB, q repository.DBExecutor) *Store {
	return &Store{
		db:           conn,
		q:            q,
		wallets:      NewWalletRepository(q),
		transactions: NewTransactionRepository(q),
		settlements:  NewSettlementRepository(q),
		drivers:      NewDriverRepository(q),
	}
}

func (s *Store) Wallets() repository.WalletRepository           { return s.wallets }
func (s *Store) Transactions() repository.TransactionRepository { return s.transactions }
func (s *Store) Settlements() repository.SettlementRepository   { return s.settlements }
func (s *Store) Drivers() repository.DriverRepository           { return s.drivers }

// WithinTx runs fn in a READ COMMITTED transaction. Races are resolved by the
// conditional updates and row locks issued inside fn, not by isolation level.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	return db.RunInTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		return fn(ctx, newStore(nil, tx))
	})
}

var _ repository.Store = (*Store)(nil)
