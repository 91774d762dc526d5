// internal/repository/settlement_repo.go
package repository

import (
	"context"

	"ridewallet/internal/domain"
)

// SettlementRepository persists settlement batch rows.
type SettlementRepository interface {
	CreateSettlement(ctx context.Context, settlement *domain.Settlement) error
	ListSettlementsByBatch(ctx context.Context, batchID string) ([]domain.Settlement, error)
}

// DriverRepository holds driver-side records the engine needs: scan-to-pay
// sessions and encrypted payout details.
type DriverRepository interface {
	CreateSession(ctx context.Context, session *domain.DriverSession) error
	GetSession(ctx context.Context, token string) (*domain.DriverSession, error)
	UpsertBankDetails(ctx context.Context, details *domain.DriverBankDetails) error
	GetBankDetails(ctx context.Context, driverID int64) (*domain.DriverBankDetails, error)
}
