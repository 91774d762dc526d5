// internal/repository/memory/store.go

// Package memory is an in-process ledger store. It backs local development
// and the test suite, and honours the same atomicity contract as Postgres:
// single operations are atomic, and WithinTx runs fully serialized against a
// private copy of the state that is swapped in only on success.
package memory

import (
	"context"
	"sync"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
)

type state struct {
	wallets      map[int64]domain.Wallet
	walletByUser map[int64]int64
	transactions map[int64]domain.Transaction
	txByRef      map[string]int64
	txByKey      map[string]int64
	settlements  map[int64]domain.Settlement
	sessions     map[string]domain.DriverSession
	bankDetails  map[int64]domain.DriverBankDetails

	nextWalletID     int64
	nextTxID         int64
	nextSettlementID int64
}

func newState() *state {
	return &state{
		wallets:      map[int64]domain.Wallet{},
		walletByUser: map[int64]int64{},
		transactions: map[int64]domain.Transaction{},
		txByRef:      map[string]int64{},
		txByKey:      map[string]int64{},
		settlements:  map[int64]domain.Settlement{},
		sessions:     map[string]domain.DriverSession{},
		bankDetails:  map[int64]domain.DriverBankDetails{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every index. Stored structs are values and their maps
// (Transaction.Metadata) are replaced rather than mutated, so a shallow copy
// of each map is enough to isolate a transaction.
func (s *state) clone() *state {
	return &state{
		wallets:          cloneMap(s.wallets),
		walletByUser:     cloneMap(s.walletByUser),
		transactions:     cloneMap(s.transactions),
		txByRef:          cloneMap(s.txByRef),
		txByKey:          cloneMap(s.txByKey),
		settlements:      cloneMap(s.settlements),
		sessions:         cloneMap(s.sessions),
		bankDetails:      cloneMap(s.bankDetails),
		nextWalletID:     s.nextWalletID,
		nextTxID:         s.nextTxID,
		nextSettlementID: s.nextSettlementID,
	}
}

type root struct {
	mu sync.Mutex
	st *state
}

// Store implements repository.Store in memory.
type Store struct {
	root *root
	tx   *state // non-nil inside WithinTx; the root lock is held
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{root: &root{st: newState()}}
}

// run executes fn against the live state: directly when inside a
// transaction, under the root lock otherwise.
func (s *Store) run(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.st)
}

func (s *Store) Wallets() repository.WalletRepository           { return &walletRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository { return &transactionRepo{s} }
func (s *Store) Settlements() repository.SettlementRepository   { return &settlementRepo{s} }
func (s *Store) Drivers() repository.DriverRepository           { return &driverRepo{s} }

// WithinTx serializes fn against all other store access. Callbacks must use
// the Store they are given; touching the outer Store from inside fn deadlocks.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	working := s.root.st.clone()
	if err := fn(ctx, &Store{root: s.root, tx: working}); err != nil {
		return err
	}
	s.root.st = working
	return nil
}

var _ repository.Store = (*Store)(nil)
