// internal/repository/store.go
package repository

import "context"

// Store bundles the ledger repositories over one storage handle.
//
// WithinTx runs fn against a Store bound to a single storage transaction:
// every mutation fn performs commits together, or none does when fn returns
// an error. Calling WithinTx on a Store that is already transactional joins
// the outer transaction.
type Store interface {
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Settlements() SettlementRepository
	Drivers() DriverRepository

	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
