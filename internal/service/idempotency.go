// internal/service/idempotency.go
package service

import (
	"context"
	"errors"
	"fmt"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"
)

// Reservation is the outcome of FindOrReserve. Existing rows must be echoed
// back to the caller as success, never charged again.
type Reservation struct {
	Transaction *domain.Transaction
	Existing    bool
}

// IdempotencyGuard makes transaction creation at-most-once per idempotency key.
// Uniqueness itself is enforced by the store; the guard turns a lost insert
// race into a read of the winner's row.
type IdempotencyGuard struct {
	store repository.Store
}

// NewIdempotencyGuard creates a guard over store.
func NewIdempotencyGuard(store repository.Store) *IdempotencyGuard {
	return &IdempotencyGuard{store: store}
}

// Find returns the row owning key through st, or nil when there is none.
func (g *IdempotencyGuard) Find(ctx context.Context, st repository.Store, key string) (*domain.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := st.Transactions().GetTransactionByIdempotencyKey(ctx, key)
	if errors.Is(err, util.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return existing, nil
}

// FindOrReserve inserts candidate unless a row with its key already exists.
// A non-nil admit runs in the same storage transaction, before the insert;
// its error aborts the reservation and is returned as is.
func (g *IdempotencyGuard) FindOrReserve(ctx context.Context, candidate *domain.Transaction, admit func(ctx context.Context, st repository.Store) error) (Reservation, error) {
	key := ""
	if candidate.IdempotencyKey != nil {
		key = *candidate.IdempotencyKey
	}

	existing, err := g.Find(ctx, g.store, key)
	if err != nil {
		return Reservation{}, err
	}
	if existing != nil {
		return Reservation{Transaction: existing, Existing: true}, nil
	}

	err = g.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if admit != nil {
			if err := admit(ctx, st); err != nil {
				return err
			}
		}
		return st.Transactions().CreateTransaction(ctx, candidate)
	})
	if err != nil {
		winner, resolveErr := g.Resolve(ctx, key, err)
		if resolveErr != nil {
			return Reservation{}, resolveErr
		}
		return Reservation{Transaction: winner, Existing: true}, nil
	}
	return Reservation{Transaction: candidate}, nil
}

// Resolve maps a duplicate-key failure to the winner's row. Any other error,
// or a duplicate without a key, is returned unchanged.
func (g *IdempotencyGuard) Resolve(ctx context.Context, key string, err error) (*domain.Transaction, error) {
	if key == "" || !errors.Is(err, util.ErrDuplicateEntry) {
		return nil, err
	}
	winner, findErr := g.Find(ctx, g.store, key)
	if findErr != nil {
		return nil, findErr
	}
	if winner == nil {
		return nil, fmt.Errorf("idempotency key reported duplicate but no row found: %w", err)
	}
	return winner, nil
}
