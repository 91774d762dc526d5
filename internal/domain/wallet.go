// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// Wallet represents a user's wallet. Riders spend from Balance, drivers
// accumulate ride earnings in PendingBalance until settlement.
type Wallet struct {
	ID              int64               `db:"id" json:"id"`
	UserID          int64               `db:"user_id" json:"user_id"`
	Currency        string              `db:"currency" json:"currency"`
	Balance         decimal.Decimal     `db:"balance" json:"balance"`
	PendingBalance  decimal.Decimal     `db:"pending_balance" json:"pending_balance"`
	DailyTopupLimit decimal.NullDecimal `db:"daily_topup_limit" json:"daily_topup_limit"` // NULL = unlimited
	DailySpendLimit decimal.NullDecimal `db:"daily_spend_limit" json:"daily_spend_limit"` // NULL = unlimited
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// NewWallet creates a new Wallet instance with zero balances.
func NewWallet(userID int64, currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		UserID:         userID,
		Currency:       currency,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ExceedsLimit reports whether spending add on top of spent would cross limit.
// An invalid (NULL) limit never blocks.
func ExceedsLimit(limit decimal.NullDecimal, spent, add decimal.Decimal) bool {
	if !limit.Valid {
		return false
	}
	return spent.Add(add).GreaterThan(limit.Decimal)
}
