// internal/repository/postgres/settlement_pg.go
package postgres

import (
	"context"
	"fmt"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
)

const settlementColumns = `id, driver_id, wallet_id, batch_id, period_start, period_end, gross_amount, fees, net_amount,
	currency, status, bank_details_snapshot, transaction_count, created_at, updated_at`

// SettlementRepository implements repository.SettlementRepository for PostgreSQL.
type SettlementRepository struct {
	q repository.DBExecutor
}

// NewSettlementRepository creates a new SettlementRepository over q.
func NewSettlementRepository(q repository.DBExecutor) *SettlementRepository {
	return &SettlementRepository{q: q}
}

// CreateSettlement inserts one settlement row.
func (r *SettlementRepository) CreateSettlement(ctx context.Context, s *domain.Settlement) error {
	query := `INSERT INTO settlements (driver_id, wallet_id, batch_id, period_start, period_end, gross_amount, fees, net_amount,
                  currency, status, bank_details_snapshot, transaction_count, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	err := r.q.QueryRowContext(ctx, query,
		s.DriverID,
		s.WalletID,
		s.BatchID,
		s.PeriodStart,
		s.PeriodEnd,
		s.GrossAmount,
		s.Fees,
		s.NetAmount,
		s.Currency,
		s.Status,
		s.BankDetailsSnapshot,
		s.TransactionCount,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create settlement for driver %d in batch %s: %w", s.DriverID, s.BatchID, err)
	}
	return nil
}

// ListSettlementsByBatch returns the rows of one batch.
func (r *SettlementRepository) ListSettlementsByBatch(ctx context.Context, batchID string) ([]domain.Settlement, error) {
	settlements := []domain.Settlement{}
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE batch_id = $1 ORDER BY driver_id`
	if err := r.q.SelectContext(ctx, &settlements, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list settlements for batch %s: %w", batchID, err)
	}
	return settlements, nil
}

var _ repository.SettlementRepository = (*SettlementRepository)(nil)
