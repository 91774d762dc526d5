// internal/service/topup_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// TopupRequest asks to fund a wallet through the gateway.
type TopupRequest struct {
	UserID         int64
	Amount         decimal.Decimal
	Phone          string
	Method         string
	Currency       string
	IdempotencyKey string
}

// TopupResult is what the client needs to follow the charge.
type TopupResult struct {
	Transaction  *domain.Transaction
	RedirectURL  string
	PollURL      string
	Instructions string
	Replayed     bool
}

// TopupService starts gateway top-ups.
type TopupService interface {
	InitiateTopup(ctx context.Context, req TopupRequest) (*TopupResult, error)
}

type topupService struct {
	store   repository.Store
	guard   *IdempotencyGuard
	gateway PaymentGateway
	cfg     LedgerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewTopupService creates a new TopupService.
func NewTopupService(store repository.Store, gw PaymentGateway, cfg LedgerConfig, m *metrics.Metrics, logger *slog.Logger) TopupService {
	return &topupService{
		store:   store,
		guard:   NewIdempotencyGuard(store),
		gateway: gw,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// InitiateTopup records a pending top-up and creates the matching gateway
// charge. A gateway failure leaves the row pending; retrying with the same
// idempotency key re-attempts the charge unless another request holds it.
func (s *topupService) InitiateTopup(ctx context.Context, req TopupRequest) (*TopupResult, error) {
	amount := domain.RoundMoney(req.Amount)
	if amount.LessThan(s.cfg.TopupMin) || amount.GreaterThan(s.cfg.TopupMax) {
		return nil, util.InvalidInput("top-up amount must be between %s and %s", domain.FormatMoney(s.cfg.TopupMin), domain.FormatMoney(s.cfg.TopupMax))
	}

	wallet, err := s.store.Wallets().GetWalletByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("initiate top-up: %w", err)
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, wallet.Currency) {
		return nil, fmt.Errorf("initiate top-up: wallet holds %s: %w", wallet.Currency, util.ErrCurrencyMismatch)
	}

	channel := "web"
	if strings.TrimSpace(req.Phone) != "" {
		channel = "mobile"
	}
	candidate := domain.NewTransaction(req.UserID, nil, &wallet.ID, amount, wallet.Currency, domain.TransactionTypeTopup, domain.TransactionStatusPending).
		WithIdempotencyKey(req.IdempotencyKey)
	candidate.Metadata = domain.Metadata{"channel": channel, domain.MetadataCharging: true}
	if req.Method != "" {
		candidate.Metadata["method"] = req.Method
	}
	if err := domain.ValidateMetadata(candidate.Type, candidate.Metadata); err != nil {
		return nil, util.InvalidInput("%v", err)
	}

	reservation, err := s.guard.FindOrReserve(ctx, candidate, s.withinDailyLimit(req.UserID, amount))
	if err != nil {
		if errors.Is(err, util.ErrDailyLimitExceeded) {
			s.metrics.Topups.WithLabelValues("daily_limit_exceeded").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("initiate top-up: %w", err)
	}
	if reservation.Existing {
		return s.replay(ctx, req, reservation.Transaction)
	}

	return s.charge(ctx, req, reservation.Transaction)
}

// withinDailyLimit checks today's pending and completed top-ups with the
// wallet row locked.
func (s *topupService) withinDailyLimit(userID int64, amount decimal.Decimal) func(ctx context.Context, st repository.Store) error {
	return func(ctx context.Context, st repository.Store) error {
		wallet, err := st.Wallets().LockWalletByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if !wallet.DailyTopupLimit.Valid {
			return nil
		}
		toppedUp, err := st.Transactions().SumAmounts(ctx, repository.TransactionFilter{
			WalletID: wallet.ID,
			Type:     domain.TransactionTypeTopup,
			Statuses: []domain.TransactionStatus{domain.TransactionStatusPending, domain.TransactionStatusCompleted},
			Since:    domain.StartOfDay(s.now(), s.cfg.location()),
		})
		if err != nil {
			return fmt.Errorf("daily total: %w", err)
		}
		if domain.ExceedsLimit(wallet.DailyTopupLimit, toppedUp, amount) {
			return util.ErrDailyLimitExceeded
		}
		return nil
	}
}

func (s *topupService) replay(ctx context.Context, req TopupRequest, tx *domain.Transaction) (*TopupResult, error) {
	if tx.UserID != req.UserID || tx.Type != domain.TransactionTypeTopup {
		return nil, fmt.Errorf("idempotency key belongs to another request: %w", util.ErrDuplicateEntry)
	}
	if tx.Status == domain.TransactionStatusPending && tx.PollURL == nil {
		claimed, err := s.store.Transactions().ClaimCharge(ctx, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("initiate top-up %s: %w", tx.Reference, err)
		}
		if claimed {
			res, err := s.charge(ctx, req, tx)
			if err != nil {
				return nil, err
			}
			res.Replayed = true
			return res, nil
		}
	}
	s.metrics.Topups.WithLabelValues("replayed").Inc()
	res := &TopupResult{Transaction: tx, Replayed: true}
	if tx.PollURL != nil {
		res.PollURL = *tx.PollURL
	}
	return res, nil
}

// charge calls the gateway for a row whose charging mark the caller holds.
func (s *topupService) charge(ctx context.Context, req TopupRequest, tx *domain.Transaction) (*TopupResult, error) {
	timer := prometheus.NewTimer(s.metrics.GatewayLatency.WithLabelValues("initiate"))
	resp, err := s.gateway.InitiateCharge(ctx, gateway.ChargeRequest{
		Reference:      tx.Reference,
		Amount:         tx.Amount,
		Phone:          req.Phone,
		Method:         req.Method,
		AdditionalInfo: "Wallet top-up",
	})
	timer.ObserveDuration()
	if err != nil {
		s.metrics.Topups.WithLabelValues("gateway_error").Inc()
		s.logger.Error("Gateway charge failed, top-up left pending", "transaction_id", tx.ID, "reference", tx.Reference, "error", err)
		if relErr := s.store.Transactions().ReleaseCharge(context.WithoutCancel(ctx), tx.ID); relErr != nil {
			s.logger.Error("Failed to release charge mark", "transaction_id", tx.ID, "error", relErr)
		}
		return nil, fmt.Errorf("initiate top-up %s: %w", tx.Reference, err)
	}

	var extRef *string
	if resp.ExternalReference != "" {
		extRef = &resp.ExternalReference
	}
	if err := s.store.Transactions().SetGatewayHandles(ctx, tx.ID, extRef, &resp.PollURL); err != nil {
		return nil, fmt.Errorf("initiate top-up %s: %w", tx.Reference, err)
	}
	tx.PollURL = &resp.PollURL
	if extRef != nil {
		tx.ExternalReference = extRef
	}
	tx.Metadata = tx.Metadata.Clone()
	delete(tx.Metadata, domain.MetadataCharging)

	s.metrics.Topups.WithLabelValues("initiated").Inc()
	s.logger.Info("Top-up initiated", "transaction_id", tx.ID, "reference", tx.Reference, "amount", domain.FormatMoney(tx.Amount))
	return &TopupResult{
		Transaction:  tx,
		RedirectURL:  resp.RedirectURL,
		PollURL:      resp.PollURL,
		Instructions: resp.Instructions,
	}, nil
}
