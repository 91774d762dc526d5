// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"ridewallet/internal/domain"

	"github.com/shopspring/decimal"
)

// ClaimUpdate carries what the winning reconciler records on the row it claims.
type ClaimUpdate struct {
	CompletedAt       time.Time
	ExternalReference *string
	Metadata          domain.Metadata
}

// TransactionFilter selects transactions touching one wallet for aggregates.
type TransactionFilter struct {
	WalletID int64
	Outgoing bool // true: from_wallet_id = WalletID, false: to_wallet_id = WalletID
	Type     domain.TransactionType
	Statuses []domain.TransactionStatus
	Since    time.Time
	Until    time.Time // zero = open ended
}

// TransactionRepository defines the interface for transaction data operations.
type TransactionRepository interface {
	// CreateTransaction inserts a row. A clash on idempotency_key fails with util.ErrDuplicateEntry.
	CreateTransaction(ctx context.Context, transaction *domain.Transaction) error
	GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)

	// ClaimTransaction moves a pending row to completed and returns it. When
	// the row is no longer pending it fails with util.ErrAlreadyProcessed.
	ClaimTransaction(ctx context.Context, id int64, claim ClaimUpdate) (*domain.Transaction, error)
	// MarkTerminal moves a pending row to failed or cancelled, with the same
	// util.ErrAlreadyProcessed contract as ClaimTransaction.
	MarkTerminal(ctx context.Context, id int64, status domain.TransactionStatus, metadata domain.Metadata) (*domain.Transaction, error)
	// SetGatewayHandles stores the gateway's references on a pending row and
	// clears its charging mark.
	SetGatewayHandles(ctx context.Context, id int64, externalReference, pollURL *string) error
	// ClaimCharge sets the charging mark on a pending row that has no poll
	// URL yet. It reports false when the mark is already held or the row has
	// moved on.
	ClaimCharge(ctx context.Context, id int64) (bool, error)
	// ReleaseCharge clears the charging mark after a failed gateway call.
	ReleaseCharge(ctx context.Context, id int64) error

	// ListPendingByUser returns the user's pending rows of a type, oldest first.
	ListPendingByUser(ctx context.Context, userID int64, txType domain.TransactionType) ([]domain.Transaction, error)
	// SumAmounts totals Amount over the filter.
	SumAmounts(ctx context.Context, filter TransactionFilter) (decimal.Decimal, error)
	// CountTransactions counts rows matching the filter.
	CountTransactions(ctx context.Context, filter TransactionFilter) (int, error)
	// GetTransactionsByWalletID retrieves paginated history for a wallet plus the total count.
	GetTransactionsByWalletID(ctx context.Context, walletID int64, limit, offset int) ([]domain.Transaction, int64, error)
}
