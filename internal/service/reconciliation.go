// internal/service/reconciliation.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Source names what triggered a reconciliation.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)

// Outcome is the result of one reconciliation attempt.
type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeFailed           Outcome = "failed"
	OutcomeStillPending     Outcome = "pending"
	OutcomeError            Outcome = "error"
)

// Confirmation is the gateway evidence that a top-up was paid.
type Confirmation struct {
	Source            Source
	ExternalReference string
	Amount            decimal.NullDecimal // when reported, must equal the transaction amount
	GatewayStatus     string
}

// ReconcileResult reports what happened to one transaction.
type ReconcileResult struct {
	TransactionID int64                    `json:"transactionId"`
	Reference     string                   `json:"reference"`
	Outcome       Outcome                  `json:"outcome"`
	Status        domain.TransactionStatus `json:"status"`
	GatewayStatus string                   `json:"gatewayStatus,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// Credited reports whether this attempt applied the wallet credit.
func (r *ReconcileResult) Credited() bool { return r.Outcome == OutcomeCredited }

// Reconciler credits paid top-ups exactly once, whichever trigger arrives first.
type Reconciler interface {
	Complete(ctx context.Context, txID int64, conf Confirmation) (*ReconcileResult, error)
	Fail(ctx context.Context, txID int64, status domain.TransactionStatus, source Source, reason string) (*ReconcileResult, error)
	HandleWebhook(ctx context.Context, payload gateway.WebhookPayload) (*ReconcileResult, error)
	CheckPending(ctx context.Context, userID int64) ([]ReconcileResult, error)
	CheckOne(ctx context.Context, userID, txID int64) (*ReconcileResult, error)
}

type reconciler struct {
	store   repository.Store
	gateway PaymentGateway
	cfg     LedgerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(store repository.Store, gw PaymentGateway, cfg LedgerConfig, m *metrics.Metrics, logger *slog.Logger) Reconciler {
	return &reconciler{
		store:   store,
		gateway: gw,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *reconciler) record(source Source, res *ReconcileResult) *ReconcileResult {
	r.metrics.Reconciliations.WithLabelValues(string(source), string(res.Outcome)).Inc()
	return res
}

// Complete claims the pending row and credits the destination wallet inside
// one storage transaction. Losing the claim yields OutcomeAlreadyProcessed and
// no credit. If the credit fails the claim rolls back with it and the row
// stays pending for the next trigger.
func (r *reconciler) Complete(ctx context.Context, txID int64, conf Confirmation) (*ReconcileResult, error) {
	var claimed *domain.Transaction
	err := r.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		tx, err := st.Transactions().GetTransactionByID(ctx, txID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTypeTopup || tx.ToWalletID == nil {
			return util.InvalidInput("transaction %d is not a top-up", txID)
		}
		if tx.Status != domain.TransactionStatusPending {
			claimed = tx
			return util.ErrAlreadyProcessed
		}
		if conf.Amount.Valid && !domain.RoundMoney(conf.Amount.Decimal).Equal(tx.Amount) {
			return fmt.Errorf("gateway reported %s for %s of %s: %w",
				domain.FormatMoney(conf.Amount.Decimal), tx.Reference, domain.FormatMoney(tx.Amount), util.ErrAmountMismatch)
		}

		update := repository.ClaimUpdate{
			CompletedAt: r.now().UTC(),
			Metadata: domain.Metadata{
				"reconciled_by":  string(conf.Source),
				"gateway_status": conf.GatewayStatus,
			},
		}
		if conf.ExternalReference != "" {
			ref := conf.ExternalReference
			update.ExternalReference = &ref
		}
		claimed, err = st.Transactions().ClaimTransaction(ctx, txID, update)
		if err != nil {
			return err
		}
		if _, err := st.Wallets().CreditAvailable(ctx, *claimed.ToWalletID, claimed.Amount); err != nil {
			return fmt.Errorf("credit wallet %d: %w", *claimed.ToWalletID, err)
		}
		return nil
	})

	switch {
	case err == nil:
		r.logger.Info("Top-up credited", "transaction_id", claimed.ID, "reference", claimed.Reference,
			"amount", domain.FormatMoney(claimed.Amount), "source", conf.Source)
		return r.record(conf.Source, &ReconcileResult{
			TransactionID: claimed.ID,
			Reference:     claimed.Reference,
			Outcome:       OutcomeCredited,
			Status:        claimed.Status,
			GatewayStatus: conf.GatewayStatus,
		}), nil
	case errors.Is(err, util.ErrAlreadyProcessed):
		res := &ReconcileResult{TransactionID: txID, Outcome: OutcomeAlreadyProcessed, GatewayStatus: conf.GatewayStatus}
		if current, getErr := r.store.Transactions().GetTransactionByID(ctx, txID); getErr == nil {
			res.Reference = current.Reference
			res.Status = current.Status
		}
		r.logger.Info("Top-up already reconciled", "transaction_id", txID, "source", conf.Source)
		return r.record(conf.Source, res), nil
	case errors.Is(err, util.ErrAmountMismatch):
		r.logger.Warn("Refusing to credit top-up with mismatched amount", "transaction_id", txID, "source", conf.Source, "error", err)
		r.record(conf.Source, &ReconcileResult{Outcome: OutcomeError})
		return nil, err
	default:
		r.logger.Error("Top-up reconciliation failed, left pending", "transaction_id", txID, "source", conf.Source, "error", err)
		r.record(conf.Source, &ReconcileResult{Outcome: OutcomeError})
		return nil, fmt.Errorf("complete transaction %d: %w", txID, err)
	}
}

// Fail moves a pending top-up to failed or cancelled.
func (r *reconciler) Fail(ctx context.Context, txID int64, status domain.TransactionStatus, source Source, reason string) (*ReconcileResult, error) {
	tx, err := r.store.Transactions().MarkTerminal(ctx, txID, status, domain.Metadata{
		"failure_reason": reason,
		"reconciled_by":  string(source),
	})
	if errors.Is(err, util.ErrAlreadyProcessed) {
		res := &ReconcileResult{TransactionID: txID, Outcome: OutcomeAlreadyProcessed}
		if current, getErr := r.store.Transactions().GetTransactionByID(ctx, txID); getErr == nil {
			res.Reference = current.Reference
			res.Status = current.Status
		}
		return r.record(source, res), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fail transaction %d: %w", txID, err)
	}
	r.logger.Info("Top-up closed without credit", "transaction_id", tx.ID, "reference", tx.Reference, "status", tx.Status, "reason", reason)
	return r.record(source, &ReconcileResult{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Outcome:       OutcomeFailed,
		Status:        tx.Status,
	}), nil
}

// HandleWebhook authenticates a gateway callback and applies it.
func (r *reconciler) HandleWebhook(ctx context.Context, payload gateway.WebhookPayload) (*ReconcileResult, error) {
	if !r.gateway.VerifyWebhook(payload) {
		r.logger.Warn("Rejected webhook with invalid signature", "reference", payload.Reference)
		r.metrics.Reconciliations.WithLabelValues(string(SourceWebhook), "invalid_signature").Inc()
		return nil, util.ErrInvalidSignature
	}

	tx, err := r.store.Transactions().GetTransactionByReference(ctx, payload.Reference)
	if err != nil {
		return nil, fmt.Errorf("webhook for %s: %w", payload.Reference, err)
	}
	status, err := gateway.ParseStatus(payload.Status)
	if err != nil {
		return nil, util.InvalidInput("%v", err)
	}

	amount := decimal.NullDecimal{}
	if payload.Amount != "" {
		parsed, err := payload.ParsedAmount()
		if err != nil {
			return nil, util.InvalidInput("webhook amount %q is not a number", payload.Amount)
		}
		amount = decimal.NewNullDecimal(parsed)
	}
	return r.apply(ctx, tx, status, Confirmation{
		Source:            SourceWebhook,
		ExternalReference: payload.ExternalReference,
		Amount:            amount,
		GatewayStatus:     string(status),
	})
}

func (r *reconciler) apply(ctx context.Context, tx *domain.Transaction, status gateway.ExternalStatus, conf Confirmation) (*ReconcileResult, error) {
	switch {
	case status.FundsConfirmed():
		return r.Complete(ctx, tx.ID, conf)
	case status.IsTerminalFailure():
		return r.Fail(ctx, tx.ID, domain.TransactionStatusCancelled, conf.Source, "gateway reported "+string(status))
	default:
		return r.record(conf.Source, &ReconcileResult{
			TransactionID: tx.ID,
			Reference:     tx.Reference,
			Outcome:       OutcomeStillPending,
			Status:        tx.Status,
			GatewayStatus: string(status),
		}), nil
	}
}

// CheckPending polls the gateway for every pending top-up of userID. Failures
// are reported per transaction and never abort the others.
func (r *reconciler) CheckPending(ctx context.Context, userID int64) ([]ReconcileResult, error) {
	pending, err := r.store.Transactions().ListPendingByUser(ctx, userID, domain.TransactionTypeTopup)
	if err != nil {
		return nil, fmt.Errorf("check pending top-ups for user %d: %w", userID, err)
	}

	results := make([]ReconcileResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.cfg.PollConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i := range pending {
		tx := pending[i]
		g.Go(func() error {
			res, err := r.poll(gctx, &tx)
			if err != nil {
				results[i] = ReconcileResult{
					TransactionID: tx.ID,
					Reference:     tx.Reference,
					Outcome:       OutcomeError,
					Status:        domain.TransactionStatusPending,
					Error:         publicMessage(err),
				}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// CheckOne polls a single top-up owned by userID.
func (r *reconciler) CheckOne(ctx context.Context, userID, txID int64) (*ReconcileResult, error) {
	tx, err := r.store.Transactions().GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID || tx.Type != domain.TransactionTypeTopup {
		return nil, util.ErrNotFound
	}
	if tx.Status != domain.TransactionStatusPending {
		return &ReconcileResult{TransactionID: tx.ID, Reference: tx.Reference, Outcome: OutcomeAlreadyProcessed, Status: tx.Status}, nil
	}
	return r.poll(ctx, tx)
}

func (r *reconciler) poll(ctx context.Context, tx *domain.Transaction) (*ReconcileResult, error) {
	if tx.PollURL == nil || *tx.PollURL == "" {
		return &ReconcileResult{
			TransactionID: tx.ID,
			Reference:     tx.Reference,
			Outcome:       OutcomeStillPending,
			Status:        tx.Status,
			Error:         "no gateway charge recorded yet",
		}, nil
	}

	timer := prometheus.NewTimer(r.metrics.GatewayLatency.WithLabelValues("poll"))
	status, err := r.gateway.PollStatus(ctx, *tx.PollURL)
	timer.ObserveDuration()
	if err != nil {
		r.logger.Warn("Gateway poll failed, top-up left pending", "transaction_id", tx.ID, "reference", tx.Reference, "error", err)
		r.record(SourcePoll, &ReconcileResult{Outcome: OutcomeError})
		return nil, fmt.Errorf("poll %s: %w", tx.Reference, err)
	}
	if status.Reference != "" && status.Reference != tx.Reference {
		return nil, fmt.Errorf("poll %s: gateway answered for %s: %w", tx.Reference, status.Reference, util.ErrGateway)
	}

	return r.apply(ctx, tx, status.Status, Confirmation{
		Source:            SourcePoll,
		ExternalReference: status.ExternalReference,
		Amount:            decimal.NewNullDecimal(status.Amount),
		GatewayStatus:     string(status.Status),
	})
}

// publicMessage keeps internal detail out of per-row client results.
func publicMessage(err error) string {
	switch util.KindOf(err) {
	case util.KindGatewayError:
		return "payment gateway unavailable, try again later"
	case util.KindConflict:
		return "gateway amount does not match; held for review"
	default:
		return "reconciliation failed"
	}
}
