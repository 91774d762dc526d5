// internal/repository/postgres/driver_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"
)

// DriverRepository implements repository.DriverRepository for PostgreSQL.
type DriverRepository struct {
	q repository.DBExecutor
}

// NewDriverRepository creates a new DriverRepository over q.
func NewDriverRepository(q repository.DBExecutor) *DriverRepository {
	return &DriverRepository{q: q}
}

// CreateSession stores a freshly issued driver session.
func (r *DriverRepository) CreateSession(ctx context.Context, s *domain.DriverSession) error {
	query := `INSERT INTO driver_sessions (token, driver_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.ExecContext(ctx, query, s.Token, s.DriverID, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session for driver %d: %w", s.DriverID, err)
	}
	return nil
}

// GetSession looks a session up by token. Expiry is checked by the caller.
func (r *DriverRepository) GetSession(ctx context.Context, token string) (*domain.DriverSession, error) {
	var s domain.DriverSession
	query := `SELECT token, driver_id, expires_at, created_at FROM driver_sessions WHERE token = $1`
	if err := r.q.GetContext(ctx, &s, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get driver session: %w", err)
	}
	return &s, nil
}

// UpsertBankDetails stores (already encrypted) payout details.
func (r *DriverRepository) UpsertBankDetails(ctx context.Context, d *domain.DriverBankDetails) error {
	query := `INSERT INTO driver_bank_details (driver_id, bank_name, account_number, account_holder_name, branch_code,
                  country, currency, is_verified, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              ON CONFLICT (driver_id) DO UPDATE SET
                  bank_name = EXCLUDED.bank_name,
                  account_number = EXCLUDED.account_number,
                  account_holder_name = EXCLUDED.account_holder_name,
                  branch_code = EXCLUDED.branch_code,
                  country = EXCLUDED.country,
                  currency = EXCLUDED.currency,
                  is_verified = EXCLUDED.is_verified,
                  updated_at = EXCLUDED.updated_at`
	_, err := r.q.ExecContext(ctx, query,
		d.DriverID, d.BankName, d.AccountNumber, d.AccountHolderName, d.BranchCode,
		d.Country, d.Currency, d.IsVerified, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert bank details for driver %d: %w", d.DriverID, err)
	}
	return nil
}

// GetBankDetails returns the encrypted payout details of a driver.
func (r *DriverRepository) GetBankDetails(ctx context.Context, driverID int64) (*domain.DriverBankDetails, error) {
	var d domain.DriverBankDetails
	query := `SELECT driver_id, bank_name, account_number, account_holder_name, branch_code, country, currency,
                  is_verified, created_at, updated_at
              FROM driver_bank_details WHERE driver_id = $1`
	if err := r.q.GetContext(ctx, &d, query, driverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bank details for driver %d: %w", driverID, err)
	}
	return &d, nil
}

var _ repository.DriverRepository = (*DriverRepository)(nil)
