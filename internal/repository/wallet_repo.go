// internal/repository/wallet_repo.go
package repository

import (
	"context"

	"ridewallet/internal/domain"

	"github.com/shopspring/decimal"
)

// WalletRepository is the ledger store for balances. Callers never
// read-modify-write a balance; every mutation is a single atomic statement.
type WalletRepository interface {
	// CreateWallet adds a new wallet. A second wallet for the same user fails with util.ErrDuplicateEntry.
	CreateWallet(ctx context.Context, wallet *domain.Wallet) error
	// GetWalletByID retrieves a wallet by its ID.
	GetWalletByID(ctx context.Context, id int64) (*domain.Wallet, error)
	// GetWalletByUserID retrieves the wallet owned by userID.
	GetWalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	// LockWalletByUserID reads the wallet and holds a row lock until the surrounding transaction ends.
	LockWalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)

	// DebitAvailable decrements balance if and only if balance >= amount and
	// returns the new balance. Fails with util.ErrInsufficientFunds otherwise.
	DebitAvailable(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// CreditAvailable increments balance and returns the new balance.
	CreditAvailable(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// CreditPending increments pending_balance and returns the new pending balance.
	CreditPending(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// ZeroPending clears pending_balance and returns the value it held.
	ZeroPending(ctx context.Context, walletID int64) (decimal.Decimal, error)

	// ListWalletsWithPendingAtLeast returns wallets whose pending balance is >= min,
	// optionally restricted to one user.
	ListWalletsWithPendingAtLeast(ctx context.Context, min decimal.Decimal, userID *int64) ([]domain.Wallet, error)
}
