// internal/domain/transaction.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal" // For precise monetary calculations
)

// TransactionType defines the type of a financial transaction.
type TransactionType string

const (
	TransactionTypeTopup       TransactionType = "topup"
	TransactionTypeRidePayment TransactionType = "ride_payment"
	TransactionTypeRideEarning TransactionType = "ride_earnings"
	TransactionTypeRefund      TransactionType = "refund"
	TransactionTypeSettlement  TransactionType = "settlement"
	TransactionTypeAdjustment  TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeTopup, TransactionTypeRidePayment, TransactionTypeRideEarning,
		TransactionTypeRefund, TransactionTypeSettlement, TransactionTypeAdjustment:
		return true
	}
	return false
}

// TransactionStatus defines the status of a financial transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// CanTransitionTo reports whether s -> next is allowed. Only pending rows move.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s != TransactionStatusPending {
		return false
	}
	switch next {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// Transaction represents a financial transaction record. Rows are never
// deleted; they are the audit trail for every balance mutation.
type Transaction struct {
	ID                int64             `db:"id" json:"id"`
	UserID            int64             `db:"user_id" json:"user_id"`
	FromWalletID      *int64            `db:"from_wallet_id" json:"from_wallet_id,omitempty"`
	ToWalletID        *int64            `db:"to_wallet_id" json:"to_wallet_id,omitempty"`
	Type              TransactionType   `db:"type" json:"type"`
	Status            TransactionStatus `db:"status" json:"status"`
	Amount            decimal.Decimal   `db:"amount" json:"amount"`
	Fee               decimal.Decimal   `db:"fee" json:"fee"`
	NetAmount         decimal.Decimal   `db:"net_amount" json:"net_amount"`
	Currency          string            `db:"currency" json:"currency"`
	Reference         string            `db:"reference" json:"reference"`
	ExternalReference *string           `db:"external_reference" json:"external_reference,omitempty"`
	PollURL           *string           `db:"poll_url" json:"-"`
	IdempotencyKey    *string           `db:"idempotency_key" json:"-"`
	Metadata          Metadata          `db:"metadata" json:"metadata"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// NewTransaction creates a new Transaction instance. Fee defaults to zero and
// NetAmount to Amount; callers charging a fee set both.
func NewTransaction(
	userID int64,
	fromWalletID *int64,
	toWalletID *int64,
	amount decimal.Decimal,
	currency string,
	txType TransactionType,
	status TransactionStatus,
) *Transaction {
	now := time.Now().UTC()
	amount = RoundMoney(amount)
	tx := &Transaction{
		UserID:       userID,
		FromWalletID: fromWalletID,
		ToWalletID:   toWalletID,
		Type:         txType,
		Status:       status,
		Amount:       amount,
		Fee:          decimal.Zero,
		NetAmount:    amount,
		Currency:     currency,
		Reference:    NewReference(txType, now),
		Metadata:     Metadata{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == TransactionStatusCompleted {
		tx.CompletedAt = &now
	}
	return tx
}

// WithIdempotencyKey sets the key when non-empty.
func (t *Transaction) WithIdempotencyKey(key string) *Transaction {
	key = strings.TrimSpace(key)
	if key != "" {
		t.IdempotencyKey = &key
	}
	return t
}

// WithFee records a fee deducted from Amount.
func (t *Transaction) WithFee(fee decimal.Decimal) *Transaction {
	t.Fee = RoundMoney(fee)
	t.NetAmount = t.Amount.Sub(t.Fee)
	return t
}

// Balanced reports whether Amount == Fee + NetAmount.
func (t *Transaction) Balanced() bool {
	return t.Amount.Equal(t.Fee.Add(t.NetAmount))
}

var referencePrefixes = map[TransactionType]string{
	TransactionTypeTopup:       "TOP",
	TransactionTypeRidePayment: "RID",
	TransactionTypeRideEarning: "ERN",
	TransactionTypeRefund:      "REF",
	TransactionTypeSettlement:  "STL",
	TransactionTypeAdjustment:  "ADJ",
}

// NewReference builds a human-facing unique reference, e.g. TOP-20261018-3F2A9C1B7D4E.
func NewReference(txType TransactionType, at time.Time) string {
	prefix, ok := referencePrefixes[txType]
	if !ok {
		prefix = "TXN"
	}
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), id[:12])
}
