// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"
	"ridewallet/pkg/db"

	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, currency, balance, pending_balance, daily_topup_limit, daily_spend_limit, created_at, updated_at`

// WalletRepository implements repository.WalletRepository for PostgreSQL.
type WalletRepository struct {
	q repository.DBExecutor
}

// NewWalletRepository creates a new WalletRepository over q.
func NewWalletRepository(q repository.DBExecutor) *WalletRepository {
	return &WalletRepository{q: q}
}

// CreateWallet inserts a new wallet into the database.
func (r *WalletRepository) CreateWallet(ctx context.Context, wallet *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, currency, balance, pending_balance, daily_topup_limit, daily_spend_limit, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.q.QueryRowContext(ctx, query,
		wallet.UserID,
		wallet.Currency,
		wallet.Balance,
		wallet.PendingBalance,
		wallet.DailyTopupLimit,
		wallet.DailySpendLimit,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	).Scan(&wallet.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "wallets_user_id_key") {
			return fmt.Errorf("wallet for user %d: %w", wallet.UserID, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetWalletByID retrieves a wallet by its ID.
func (r *WalletRepository) GetWalletByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	if err := r.q.GetContext(ctx, &wallet, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by ID %d: %w", id, err)
	}
	return &wallet, nil
}

// GetWalletByUserID retrieves the wallet owned by a user.
func (r *WalletRepository) GetWalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return r.getByUser(ctx, userID, false)
}

// LockWalletByUserID reads the wallet with SELECT ... FOR UPDATE.
func (r *WalletRepository) LockWalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return r.getByUser(ctx, userID, true)
}

func (r *WalletRepository) getByUser(ctx context.Context, userID int64, lock bool) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	if err := r.q.GetContext(ctx, &wallet, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet for user %d: %w", userID, err)
	}
	return &wallet, nil
}

// DebitAvailable is a single conditional update; a concurrent debit can never
// drive the balance negative because the guard and the write are one statement.
func (r *WalletRepository) DebitAvailable(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return decimal.Zero, util.InvalidInput("debit amount must be positive")
	}

	query := `UPDATE wallets SET balance = balance - $1, updated_at = $2
              WHERE id = $3 AND balance >= $1
              RETURNING balance`
	var balance decimal.Decimal
	err := r.q.GetContext(ctx, &balance, query, amount, time.Now().UTC(), walletID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("failed to debit wallet %d: %w", walletID, err)
	}

	// Zero rows: either the wallet is missing or the guard rejected the debit.
	var exists bool
	if err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, walletID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to check wallet %d after rejected debit: %w", walletID, err)
	}
	if !exists {
		return decimal.Zero, util.ErrWalletNotFound
	}
	return decimal.Zero, util.ErrInsufficientFunds
}

// CreditAvailable increments the available balance.
func (r *WalletRepository) CreditAvailable(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return r.credit(ctx, "balance", walletID, amount)
}

// CreditPending increments the pending (unsettled) balance.
func (r *WalletRepository) CreditPending(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return r.credit(ctx, "pending_balance", walletID, amount)
}

func (r *WalletRepository) credit(ctx context.Context, column string, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if amount.IsNegative() {
		return decimal.Zero, util.InvalidInput("credit amount must not be negative")
	}

	query := fmt.Sprintf(`UPDATE wallets SET %[1]s = %[1]s + $1, updated_at = $2 WHERE id = $3 RETURNING %[1]s`, column)
	var value decimal.Decimal
	if err := r.q.GetContext(ctx, &value, query, amount, time.Now().UTC(), walletID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, util.ErrWalletNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to credit %s of wallet %d: %w", column, walletID, err)
	}
	return value, nil
}

// ZeroPending clears the pending balance and returns what it held, in one
// statement so a credit landing concurrently is either included or kept.
func (r *WalletRepository) ZeroPending(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	query := `UPDATE wallets w SET pending_balance = 0, updated_at = $2
              FROM (SELECT id, pending_balance FROM wallets WHERE id = $1 FOR UPDATE) prev
              WHERE w.id = prev.id
              RETURNING prev.pending_balance`
	var previous decimal.Decimal
	if err := r.q.GetContext(ctx, &previous, query, walletID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, util.ErrWalletNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to zero pending balance of wallet %d: %w", walletID, err)
	}
	return previous, nil
}

// ListWalletsWithPendingAtLeast returns settlement candidates ordered by user.
func (r *WalletRepository) ListWalletsWithPendingAtLeast(ctx context.Context, min decimal.Decimal, userID *int64) ([]domain.Wallet, error) {
	wallets := []domain.Wallet{}
	query := `SELECT ` + walletColumns + ` FROM wallets
              WHERE pending_balance >= $1 AND pending_balance > 0 AND ($2::BIGINT IS NULL OR user_id = $2)
              ORDER BY user_id`
	if err := r.q.SelectContext(ctx, &wallets, query, min, userID); err != nil {
		return nil, fmt.Errorf("failed to list wallets with pending balance >= %s: %w", min, err)
	}
	return wallets, nil
}

var _ repository.WalletRepository = (*WalletRepository)(nil)
