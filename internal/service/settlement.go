// internal/service/settlement.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/export"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/secure"
	"ridewallet/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reasons a driver is left out of a batch.
const (
	SkipNoBankDetails     = "no_bank_details"
	SkipDecryptionFailure = "decryption_failure"
	SkipBelowThreshold    = "below_threshold"
	SkipError             = "error"
)

var errBelowThreshold = errors.New("pending balance fell below payout threshold")

// SettlementConfig holds the payout defaults.
type SettlementConfig struct {
	MinPayout decimal.Decimal
	FeeRate   decimal.Decimal
}

// BatchRequest selects what a run settles. Zero overrides fall back to SettlementConfig.
type BatchRequest struct {
	Period    string
	DriverID  *int64
	DryRun    bool
	MinPayout decimal.NullDecimal
	FeeRate   decimal.NullDecimal
}

// SettlementLine pairs a settlement with the decrypted account it pays into.
type SettlementLine struct {
	Settlement domain.Settlement
	Account    domain.BankAccount
}

// SkippedDriver is a driver excluded from the batch and why.
type SkippedDriver struct {
	DriverID int64  `json:"driverId"`
	Reason   string `json:"reason"`
}

// BatchResult summarises one run.
type BatchResult struct {
	BatchID    string
	Period     domain.Period
	DryRun     bool
	Lines      []SettlementLine
	Skipped    []SkippedDriver
	TotalGross decimal.Decimal
	TotalFees  decimal.Decimal
	TotalNet   decimal.Decimal
	CSV        string
}

// PayoutRows flattens the lines for export.
func (r *BatchResult) PayoutRows() []export.PayoutRow {
	rows := make([]export.PayoutRow, 0, len(r.Lines))
	for _, l := range r.Lines {
		rows = append(rows, export.PayoutRow{
			BatchID:      r.BatchID,
			SettlementID: l.Settlement.ID,
			DriverID:     l.Settlement.DriverID,
			Account:      l.Account,
			Gross:        l.Settlement.GrossAmount,
			Fees:         l.Settlement.Fees,
			Net:          l.Settlement.NetAmount,
			PeriodStart:  r.Period.Start,
			PeriodEnd:    r.Period.End,
		})
	}
	return rows
}

// SettlementService turns driver pending balances into payout batches.
type SettlementService interface {
	RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
	ListBatch(ctx context.Context, batchID string) ([]domain.Settlement, error)
}

type settlementService struct {
	store   repository.Store
	cipher  *secure.Cipher
	cfg     SettlementConfig
	loc     *time.Location
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(store repository.Store, cipher *secure.Cipher, cfg SettlementConfig, ledger LedgerConfig, m *metrics.Metrics, logger *slog.Logger) SettlementService {
	return &settlementService{
		store:   store,
		cipher:  cipher,
		cfg:     cfg,
		loc:     ledger.location(),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// RunBatch settles every driver whose pending balance reaches the payout
// threshold. Each driver is settled in its own storage transaction, so one
// driver's failure never touches another's balance. A dry run performs the
// same computation without writing anything.
func (s *settlementService) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	period, err := domain.ResolvePeriod(req.Period, s.now(), s.loc)
	if err != nil {
		return nil, util.InvalidInput("%v", err)
	}
	minPayout := s.cfg.MinPayout
	if req.MinPayout.Valid {
		minPayout = req.MinPayout.Decimal
	}
	feeRate := s.cfg.FeeRate
	if req.FeeRate.Valid {
		feeRate = req.FeeRate.Decimal
	}
	if minPayout.IsNegative() || feeRate.IsNegative() || feeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, util.InvalidInput("minimum payout must be >= 0 and fee rate within [0, 1]")
	}
	fees := domain.FlatRate(feeRate)

	wallets, err := s.store.Wallets().ListWalletsWithPendingAtLeast(ctx, minPayout, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("run settlement batch: %w", err)
	}

	result := &BatchResult{
		BatchID:    uuid.NewString(),
		Period:     period,
		DryRun:     req.DryRun,
		Lines:      []SettlementLine{},
		Skipped:    []SkippedDriver{},
		TotalGross: decimal.Zero,
		TotalFees:  decimal.Zero,
		TotalNet:   decimal.Zero,
	}
	logger := s.logger.With("batch_id", result.BatchID, "period", period.Name, "dry_run", req.DryRun)
	logger.Info("Settlement batch started", "candidates", len(wallets))

	for _, wallet := range wallets {
		line, reason, err := s.settleDriver(ctx, result, wallet, minPayout, fees, req.DryRun)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedDriver{DriverID: wallet.UserID, Reason: reason})
			s.metrics.Settlements.WithLabelValues(reason).Inc()
			if reason == SkipError {
				logger.Error("Driver skipped from settlement", "driver_id", wallet.UserID, "error", err)
			} else {
				logger.Warn("Driver skipped from settlement", "driver_id", wallet.UserID, "reason", reason)
			}
			continue
		}
		result.Lines = append(result.Lines, *line)
		result.TotalGross = result.TotalGross.Add(line.Settlement.GrossAmount)
		result.TotalFees = result.TotalFees.Add(line.Settlement.Fees)
		result.TotalNet = result.TotalNet.Add(line.Settlement.NetAmount)
		s.metrics.Settlements.WithLabelValues("settled").Inc()
	}

	csv, err := export.CSV(result.PayoutRows())
	if err != nil {
		return nil, fmt.Errorf("run settlement batch: %w", err)
	}
	result.CSV = csv

	logger.Info("Settlement batch finished", "settled", len(result.Lines), "skipped", len(result.Skipped),
		"total_net", domain.FormatMoney(result.TotalNet))
	return result, nil
}

func (s *settlementService) settleDriver(
	ctx context.Context,
	batch *BatchResult,
	wallet domain.Wallet,
	minPayout decimal.Decimal,
	fees domain.FeeSchedule,
	dryRun bool,
) (*SettlementLine, string, error) {
	details, err := s.store.Drivers().GetBankDetails(ctx, wallet.UserID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, SkipNoBankDetails, err
	}
	if err != nil {
		return nil, SkipError, err
	}
	account, err := s.cipher.OpenBankAccount(details)
	if err != nil {
		return nil, SkipDecryptionFailure, err
	}

	now := s.now().UTC()
	settlement := domain.Settlement{
		DriverID:    wallet.UserID,
		WalletID:    wallet.ID,
		BatchID:     batch.BatchID,
		PeriodStart: batch.Period.Start,
		PeriodEnd:   batch.Period.End,
		Currency:    wallet.Currency,
		Status:      domain.SettlementStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rides := repository.TransactionFilter{
		WalletID: wallet.ID,
		Type:     domain.TransactionTypeRidePayment,
		Statuses: []domain.TransactionStatus{domain.TransactionStatusCompleted},
		Since:    batch.Period.Start,
		Until:    batch.Period.End,
	}
	price := func(gross decimal.Decimal) {
		settlement.GrossAmount = gross
		settlement.Fees = fees.Fee(gross)
		settlement.NetAmount = gross.Sub(settlement.Fees)
	}

	if dryRun {
		count, err := s.store.Transactions().CountTransactions(ctx, rides)
		if err != nil {
			return nil, SkipError, err
		}
		settlement.TransactionCount = count
		price(wallet.PendingBalance)
		return &SettlementLine{Settlement: settlement, Account: account}, "", nil
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		gross, err := st.Wallets().ZeroPending(ctx, wallet.ID)
		if err != nil {
			return err
		}
		if !gross.IsPositive() || gross.LessThan(minPayout) {
			return errBelowThreshold
		}
		price(gross)

		count, err := st.Transactions().CountTransactions(ctx, rides)
		if err != nil {
			return err
		}
		settlement.TransactionCount = count

		snapshot, err := s.cipher.SealSnapshot(account)
		if err != nil {
			return err
		}
		settlement.BankDetailsSnapshot = snapshot
		if err := st.Settlements().CreateSettlement(ctx, &settlement); err != nil {
			return err
		}

		payout := domain.NewTransaction(wallet.UserID, &wallet.ID, nil, gross, wallet.Currency,
			domain.TransactionTypeSettlement, domain.TransactionStatusCompleted).
			WithFee(settlement.Fees)
		payout.Metadata = domain.Metadata{
			"batch_id":      batch.BatchID,
			"settlement_id": settlement.ID,
			"period":        batch.Period.Name,
		}
		if err := domain.ValidateMetadata(payout.Type, payout.Metadata); err != nil {
			return err
		}
		return st.Transactions().CreateTransaction(ctx, payout)
	})
	if errors.Is(err, errBelowThreshold) {
		return nil, SkipBelowThreshold, err
	}
	if err != nil {
		return nil, SkipError, err
	}
	return &SettlementLine{Settlement: settlement, Account: account}, "", nil
}

// ListBatch returns the settlements written by one run.
func (s *settlementService) ListBatch(ctx context.Context, batchID string) ([]domain.Settlement, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return nil, util.InvalidInput("batch id must be a UUID")
	}
	settlements, err := s.store.Settlements().ListSettlementsByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list settlement batch %s: %w", batchID, err)
	}
	return settlements, nil
}
