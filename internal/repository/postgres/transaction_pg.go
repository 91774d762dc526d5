// internal/repository/postgres/transaction_pg.go
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

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, from_wallet_id, to_wallet_id, type, status, amount, fee, net_amount, currency,
	reference, external_reference, poll_url, idempotency_key, metadata, created_at, updated_at, completed_at`

const idempotencyIndex = "transactions_idempotency_key_uidx"

// TransactionRepository implements repository.TransactionRepository for PostgreSQL.
type TransactionRepository struct {
	q repository.DBExecutor
}

// NewTransactionRepository creates a new TransactionRepository over q.
func NewTransactionRepository(q repository.DBExecutor) *TransactionRepository {
	return &TransactionRepository{q: q}
}

// CreateTransaction inserts a new transaction record into the database.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (user_id, from_wallet_id, to_wallet_id, type, status, amount, fee, net_amount, currency,
                  reference, external_reference, poll_url, idempotency_key, metadata, created_at, updated_at, completed_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING id`

	err := r.q.QueryRowContext(ctx, query,
		t.UserID,
		t.FromWalletID,
		t.ToWalletID,
		t.Type,
		t.Status,
		t.Amount,
		t.Fee,
		t.NetAmount,
		t.Currency,
		t.Reference,
		t.ExternalReference,
		t.PollURL,
		t.IdempotencyKey,
		t.Metadata,
		t.CreatedAt,
		t.UpdatedAt,
		t.CompletedAt,
	).Scan(&t.ID)
	if err != nil {
		if db.IsUniqueViolation(err, idempotencyIndex) {
			return fmt.Errorf("transaction with idempotency key: %w", util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) getOne(ctx context.Context, where string, arg any) (*domain.Transaction, error) {
	var t domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where
	if err := r.q.GetContext(ctx, &t, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction (%s): %w", where, err)
	}
	return &t, nil
}

// GetTransactionByID retrieves a transaction by primary key.
func (r *TransactionRepository) GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetTransactionByReference retrieves a transaction by its human-facing reference.
func (r *TransactionRepository) GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.getOne(ctx, "reference = $1", reference)
}

// GetTransactionByIdempotencyKey retrieves the row that owns key.
func (r *TransactionRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return r.getOne(ctx, "idempotency_key = $1", key)
}

// ClaimTransaction is the reconciliation mutex: the WHERE status = 'pending'
// guard lets exactly one concurrent caller see a returned row.
func (r *TransactionRepository) ClaimTransaction(ctx context.Context, id int64, claim repository.ClaimUpdate) (*domain.Transaction, error) {
	meta := claim.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	query := `UPDATE transactions
              SET status = 'completed',
                  completed_at = $2,
                  updated_at = $2,
                  external_reference = COALESCE($3, external_reference),
                  metadata = (metadata - 'charging') || $4::jsonb
              WHERE id = $1 AND status = 'pending'
              RETURNING ` + transactionColumns
	var t domain.Transaction
	if err := r.q.GetContext(ctx, &t, query, id, claim.CompletedAt, claim.ExternalReference, meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.notPending(ctx, id)
		}
		return nil, fmt.Errorf("failed to claim transaction %d: %w", id, err)
	}
	return &t, nil
}

// MarkTerminal moves a pending row to failed or cancelled.
func (r *TransactionRepository) MarkTerminal(ctx context.Context, id int64, status domain.TransactionStatus, metadata domain.Metadata) (*domain.Transaction, error) {
	if status != domain.TransactionStatusFailed && status != domain.TransactionStatusCancelled {
		return nil, util.InvalidInput("terminal status must be failed or cancelled, got %s", status)
	}
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	query := `UPDATE transactions
              SET status = $2, updated_at = $3, metadata = (metadata - 'charging') || $4::jsonb
              WHERE id = $1 AND status = 'pending'
              RETURNING ` + transactionColumns
	var t domain.Transaction
	if err := r.q.GetContext(ctx, &t, query, id, status, time.Now().UTC(), metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.notPending(ctx, id)
		}
		return nil, fmt.Errorf("failed to mark transaction %d as %s: %w", id, status, err)
	}
	return &t, nil
}

// notPending tells a missing row apart from one another caller already moved.
func (r *TransactionRepository) notPending(ctx context.Context, id int64) error {
	var exists bool
	if err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check transaction %d: %w", id, err)
	}
	if !exists {
		return util.ErrNotFound
	}
	return util.ErrAlreadyProcessed
}

// SetGatewayHandles records the gateway's references on a pending row.
func (r *TransactionRepository) SetGatewayHandles(ctx context.Context, id int64, externalReference, pollURL *string) error {
	query := `UPDATE transactions
              SET external_reference = COALESCE($2, external_reference),
                  poll_url = COALESCE($3, poll_url),
                  metadata = metadata - 'charging',
                  updated_at = $4
              WHERE id = $1 AND status = 'pending'`
	if _, err := r.q.ExecContext(ctx, query, id, externalReference, pollURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set gateway handles for transaction %d: %w", id, err)
	}
	return nil
}

// ClaimCharge marks a pending row without a poll URL as being charged. Only
// one caller can hold the mark.
func (r *TransactionRepository) ClaimCharge(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE transactions
              SET metadata = metadata || '{"charging": true}'::jsonb, updated_at = $2
              WHERE id = $1 AND status = 'pending' AND poll_url IS NULL
                AND metadata -> 'charging' IS NULL`
	res, err := r.q.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim charge for transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim charge for transaction %d: %w", id, err)
	}
	return n == 1, nil
}

// ReleaseCharge drops the charging mark.
func (r *TransactionRepository) ReleaseCharge(ctx context.Context, id int64) error {
	query := `UPDATE transactions SET metadata = metadata - 'charging', updated_at = $2 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to release charge for transaction %d: %w", id, err)
	}
	return nil
}

// ListPendingByUser returns the user's pending transactions of a type.
func (r *TransactionRepository) ListPendingByUser(ctx context.Context, userID int64, txType domain.TransactionType) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions
              WHERE user_id = $1 AND type = $2 AND status = 'pending'
              ORDER BY created_at ASC`
	if err := r.q.SelectContext(ctx, &transactions, query, userID, txType); err != nil {
		return nil, fmt.Errorf("failed to list pending %s transactions for user %d: %w", txType, userID, err)
	}
	return transactions, nil
}

func filterClause(f repository.TransactionFilter) (string, []any) {
	column := "to_wallet_id"
	if f.Outgoing {
		column = "from_wallet_id"
	}
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	var until *time.Time
	if !f.Until.IsZero() {
		u := f.Until
		until = &u
	}
	where := fmt.Sprintf(`%s = $1 AND type = $2 AND status = ANY($3) AND created_at >= $4
              AND ($5::TIMESTAMPTZ IS NULL OR created_at < $5)`, column)
	return where, []any{f.WalletID, f.Type, pq.Array(statuses), f.Since, until}
}

// SumAmounts totals amount over the filter.
func (r *TransactionRepository) SumAmounts(ctx context.Context, f repository.TransactionFilter) (decimal.Decimal, error) {
	where, args := filterClause(f)
	var total decimal.Decimal
	if err := r.q.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE `+where, args...); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum %s transactions for wallet %d: %w", f.Type, f.WalletID, err)
	}
	return total, nil
}

// CountTransactions counts rows matching the filter.
func (r *TransactionRepository) CountTransactions(ctx context.Context, f repository.TransactionFilter) (int, error) {
	where, args := filterClause(f)
	var count int
	if err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM transactions WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s transactions for wallet %d: %w", f.Type, f.WalletID, err)
	}
	return count, nil
}

// GetTransactionsByWalletID retrieves a paginated list of transactions for a specific wallet.
// It performs two queries: one for the data and one for the total count.
func (r *TransactionRepository) GetTransactionsByWalletID(ctx context.Context, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	transactions := []domain.Transaction{}

	query := `SELECT ` + transactionColumns + ` FROM transactions
              WHERE from_wallet_id = $1 OR to_wallet_id = $1
              ORDER BY created_at DESC, id DESC
              LIMIT $2 OFFSET $3`
	if err := r.q.SelectContext(ctx, &transactions, query, walletID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions for wallet %d: %w", walletID, err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM transactions WHERE from_wallet_id = $1 OR to_wallet_id = $1`
	if err := r.q.GetContext(ctx, &totalCount, countQuery, walletID); err != nil {
		return nil, 0, fmt.Errorf("failed to get total transaction count for wallet %d: %w", walletID, err)
	}

	return transactions, totalCount, nil
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)
