// internal/service/ride_payment.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
)

// RidePaymentRequest pays a driver for a completed ride.
type RidePaymentRequest struct {
	RiderID            int64
	DriverSessionToken string
	Amount             decimal.Decimal
	Tip                decimal.Decimal
	IdempotencyKey     string
}

// RidePaymentResult is returned for both fresh payments and replays.
type RidePaymentResult struct {
	Transaction     *domain.Transaction
	PayerNewBalance decimal.Decimal
	Replayed        bool
}

// RidePaymentService moves ride fares from rider to driver.
type RidePaymentService interface {
	Pay(ctx context.Context, req RidePaymentRequest) (*RidePaymentResult, error)
}

type ridePaymentService struct {
	store    repository.Store
	guard    *IdempotencyGuard
	sessions DriverSessionService
	cfg      LedgerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewRidePaymentService creates a new RidePaymentService.
func NewRidePaymentService(store repository.Store, sessions DriverSessionService, cfg LedgerConfig, m *metrics.Metrics, logger *slog.Logger) RidePaymentService {
	return &ridePaymentService{
		store:    store,
		guard:    NewIdempotencyGuard(store),
		sessions: sessions,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Pay debits the rider by fare+tip, credits the driver's pending balance by
// fare-fee+tip and records one completed ride_payment row. All three writes
// share one storage transaction.
func (s *ridePaymentService) Pay(ctx context.Context, req RidePaymentRequest) (*RidePaymentResult, error) {
	fare := domain.RoundMoney(req.Amount)
	tip := domain.RoundMoney(req.Tip)
	if !fare.IsPositive() {
		return nil, util.InvalidInput("amount must be positive")
	}
	if tip.IsNegative() {
		return nil, util.InvalidInput("tip must not be negative")
	}
	if strings.TrimSpace(req.DriverSessionToken) == "" {
		return nil, util.InvalidInput("driver session token is required")
	}

	session, err := s.sessions.Resolve(ctx, req.DriverSessionToken)
	if err != nil {
		s.count(err)
		return nil, err
	}
	if session.DriverID == req.RiderID {
		s.count(util.ErrSelfPaymentNotAllowed)
		return nil, util.ErrSelfPaymentNotAllowed
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	existing, err := s.guard.Find(ctx, s.store, key)
	if err != nil {
		return nil, fmt.Errorf("ride payment: %w", err)
	}
	if existing != nil {
		return s.replay(ctx, req.RiderID, existing)
	}

	driverWallet, err := s.store.Wallets().GetWalletByUserID(ctx, session.DriverID)
	if err != nil {
		return nil, fmt.Errorf("ride payment: driver wallet: %w", err)
	}

	total := fare.Add(tip)
	fee := s.cfg.RideFee.Fee(fare)
	driverNet := fare.Sub(fee).Add(tip)

	var (
		payment    *domain.Transaction
		newBalance decimal.Decimal
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		rider, err := st.Wallets().LockWalletByUserID(ctx, req.RiderID)
		if err != nil {
			return err
		}
		if rider.Currency != driverWallet.Currency {
			return util.ErrCurrencyMismatch
		}
		if rider.Balance.LessThan(total) {
			return util.ErrInsufficientFunds
		}

		if rider.DailySpendLimit.Valid {
			spent, err := st.Transactions().SumAmounts(ctx, repository.TransactionFilter{
				WalletID: rider.ID,
				Outgoing: true,
				Type:     domain.TransactionTypeRidePayment,
				Statuses: []domain.TransactionStatus{domain.TransactionStatusCompleted},
				Since:    domain.StartOfDay(s.now(), s.cfg.location()),
			})
			if err != nil {
				return fmt.Errorf("daily spend: %w", err)
			}
			if domain.ExceedsLimit(rider.DailySpendLimit, spent, total) {
				return util.ErrDailyLimitExceeded
			}
		}

		newBalance, err = st.Wallets().DebitAvailable(ctx, rider.ID, total)
		if err != nil {
			return err
		}
		if _, err := st.Wallets().CreditPending(ctx, driverWallet.ID, driverNet); err != nil {
			return fmt.Errorf("credit driver %d: %w", session.DriverID, err)
		}

		payment = domain.NewTransaction(req.RiderID, &rider.ID, &driverWallet.ID, total, rider.Currency,
			domain.TransactionTypeRidePayment, domain.TransactionStatusCompleted).
			WithIdempotencyKey(key).
			WithFee(fee)
		payment.Metadata = domain.Metadata{
			"fare":         domain.FormatMoney(fare),
			"tip":          domain.FormatMoney(tip),
			"platform_fee": domain.FormatMoney(fee),
			"driver_id":    session.DriverID,
		}
		if err := domain.ValidateMetadata(payment.Type, payment.Metadata); err != nil {
			return err
		}
		return st.Transactions().CreateTransaction(ctx, payment)
	})
	if err != nil {
		if winner, resolveErr := s.guard.Resolve(ctx, key, err); resolveErr == nil {
			return s.replay(ctx, req.RiderID, winner)
		}
		s.count(err)
		if util.KindOf(err) == util.KindInternal {
			s.logger.Error("Ride payment failed", "rider_id", req.RiderID, "driver_id", session.DriverID, "error", err)
			return nil, fmt.Errorf("ride payment: %w", err)
		}
		return nil, err
	}

	s.metrics.RidePayments.WithLabelValues("completed").Inc()
	s.logger.Info("Ride payment completed", "transaction_id", payment.ID, "reference", payment.Reference,
		"rider_id", req.RiderID, "driver_id", session.DriverID, "amount", domain.FormatMoney(total), "fee", domain.FormatMoney(fee))
	return &RidePaymentResult{Transaction: payment, PayerNewBalance: newBalance}, nil
}

func (s *ridePaymentService) replay(ctx context.Context, riderID int64, tx *domain.Transaction) (*RidePaymentResult, error) {
	if tx.UserID != riderID || tx.Type != domain.TransactionTypeRidePayment {
		return nil, fmt.Errorf("idempotency key belongs to another request: %w", util.ErrDuplicateEntry)
	}
	rider, err := s.store.Wallets().GetWalletByUserID(ctx, riderID)
	if err != nil {
		return nil, fmt.Errorf("ride payment replay: %w", err)
	}
	s.metrics.RidePayments.WithLabelValues("replayed").Inc()
	return &RidePaymentResult{Transaction: tx, PayerNewBalance: rider.Balance, Replayed: true}, nil
}

func (s *ridePaymentService) count(err error) {
	var outcome string
	switch {
	case errors.Is(err, util.ErrInsufficientFunds):
		outcome = "insufficient_funds"
	case errors.Is(err, util.ErrDailyLimitExceeded):
		outcome = "daily_limit_exceeded"
	case errors.Is(err, util.ErrInvalidSession):
		outcome = "invalid_session"
	case errors.Is(err, util.ErrSelfPaymentNotAllowed):
		outcome = "self_payment"
	default:
		outcome = "error"
	}
	s.metrics.RidePayments.WithLabelValues(outcome).Inc()
}
