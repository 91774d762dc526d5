package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyGuard_FindOrReserve(t *testing.T) {
	ctx := context.Background()

	newCandidate := func(w *domain.Wallet, key string) *domain.Transaction {
		return domain.NewTransaction(w.UserID, nil, &w.ID, dec("5.00"), "USD", domain.TransactionTypeTopup, domain.TransactionStatusPending).
			WithIdempotencyKey(key)
	}

	t.Run("Reserves new key", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		guard := NewIdempotencyGuard(st)

		res, err := guard.FindOrReserve(ctx, newCandidate(w, "key-1"), nil)
		require.NoError(t, err)
		assert.False(t, res.Existing)
		assert.NotZero(t, res.Transaction.ID)
	})

	t.Run("Returns existing row", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		guard := NewIdempotencyGuard(st)

		first, err := guard.FindOrReserve(ctx, newCandidate(w, "key-1"), nil)
		require.NoError(t, err)
		second, err := guard.FindOrReserve(ctx, newCandidate(w, "key-1"), nil)
		require.NoError(t, err)

		assert.True(t, second.Existing)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Len(t, historyOf(t, st, w.ID), 1)
	})

	t.Run("No key always inserts", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		guard := NewIdempotencyGuard(st)

		for i := 0; i < 2; i++ {
			res, err := guard.FindOrReserve(ctx, newCandidate(w, "  "), nil)
			require.NoError(t, err)
			assert.False(t, res.Existing)
		}
		assert.Len(t, historyOf(t, st, w.ID), 2)
	})

	t.Run("Admit runs before insert", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		guard := NewIdempotencyGuard(st)

		refused := errors.New("refused")
		_, err := guard.FindOrReserve(ctx, newCandidate(w, "key-1"), func(ctx context.Context, inner repository.Store) error {
			_, err := inner.Wallets().LockWalletByUserID(ctx, w.UserID)
			require.NoError(t, err)
			return refused
		})
		assert.Same(t, refused, err)
		assert.Empty(t, historyOf(t, st, w.ID))

		res, err := guard.FindOrReserve(ctx, newCandidate(w, "key-1"), func(context.Context, repository.Store) error { return nil })
		require.NoError(t, err)
		assert.False(t, res.Existing, "a refused key stays free")
	})

	t.Run("Concurrent reservations share one row", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		guard := NewIdempotencyGuard(st)

		const callers = 10
		ids := make([]int64, callers)
		fresh := make([]bool, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := guard.FindOrReserve(ctx, newCandidate(w, "shared"), nil)
				if assert.NoError(t, err) {
					ids[i] = res.Transaction.ID
					fresh[i] = !res.Existing
				}
			}(i)
		}
		wg.Wait()

		created := 0
		for i := range ids {
			assert.Equal(t, ids[0], ids[i])
			if fresh[i] {
				created++
			}
		}
		assert.Equal(t, 1, created)
		assert.Len(t, historyOf(t, st, w.ID), 1)
	})
}

func TestIdempotencyGuard_Resolve(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	guard := NewIdempotencyGuard(st)

	t.Run("Other errors pass through", func(t *testing.T) {
		other := errors.New("boom")
		winner, err := guard.Resolve(ctx, "key", other)
		assert.Nil(t, winner)
		assert.Same(t, other, err)
	})

	t.Run("Duplicate without key passes through", func(t *testing.T) {
		winner, err := guard.Resolve(ctx, "", util.ErrDuplicateEntry)
		assert.Nil(t, winner)
		assert.ErrorIs(t, err, util.ErrDuplicateEntry)
	})

	t.Run("Duplicate with vanished row", func(t *testing.T) {
		winner, err := guard.Resolve(ctx, "missing", util.ErrDuplicateEntry)
		assert.Nil(t, winner)
		assert.ErrorIs(t, err, util.ErrDuplicateEntry)
	})
}
