package service

import (
	"context"
	"sync"
	"testing"

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const pollURL = "https://pay.example/poll?guid=1"

func paidStatus(tx *domain.Transaction, status gateway.ExternalStatus) *gateway.StatusResult {
	return &gateway.StatusResult{
		Status:            status,
		Reference:         tx.Reference,
		ExternalReference: "4410",
		Amount:            tx.Amount,
		PollURL:           pollURL,
	}
}

func webhookFor(tx *domain.Transaction, status string) gateway.WebhookPayload {
	return gateway.WebhookPayload{
		Reference:         tx.Reference,
		ExternalReference: "4410",
		Amount:            domain.FormatMoney(tx.Amount),
		Status:            status,
		PollURL:           pollURL,
		Hash:              "ignored-by-mock",
	}
}

func TestReconciler_CompleteCreditsOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	tx := seedPendingTopup(t, st, w, "5.00", pollURL)
	r := NewReconciler(st, new(MockGateway), testLedger(), newTestMetrics(), quietLogger)

	first, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourceWebhook, ExternalReference: "4410", GatewayStatus: "Paid"})
	require.NoError(t, err)
	assert.True(t, first.Credited())
	assert.Equal(t, domain.TransactionStatusCompleted, first.Status)

	second, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourcePoll})
	require.NoError(t, err)
	assert.False(t, second.Credited())
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)

	assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, st, 1).Balance))
	stored, err := st.Transactions().GetTransactionByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "4410", *stored.ExternalReference)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "webhook", stored.Metadata.String("reconciled_by"))
}

func TestReconciler_ConcurrentClaimsCreditOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	tx := seedPendingTopup(t, st, w, "5.00", pollURL)
	r := NewReconciler(st, new(MockGateway), testLedger(), newTestMetrics(), quietLogger)

	const callers = 16
	results := make([]*ReconcileResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourcePoll, GatewayStatus: "Paid"})
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	credited := 0
	for _, res := range results {
		if res != nil && res.Credited() {
			credited++
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, st, 1).Balance))
}

func TestReconciler_WebhookRacesPoll(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	tx := seedPendingTopup(t, st, w, "5.00", pollURL)

	gw := new(MockGateway)
	gw.On("VerifyWebhook", mock.Anything).Return(true)
	gw.On("PollStatus", mock.Anything, pollURL).Return(paidStatus(tx, gateway.StatusPaid), nil)
	r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

	var (
		wg      sync.WaitGroup
		webhook *ReconcileResult
		polled  []ReconcileResult
		hookErr error
		pollErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		webhook, hookErr = r.HandleWebhook(ctx, webhookFor(tx, "Paid"))
	}()
	go func() {
		defer wg.Done()
		polled, pollErr = r.CheckPending(ctx, 1)
	}()
	wg.Wait()

	require.NoError(t, hookErr)
	require.NoError(t, pollErr)

	credited := 0
	if webhook.Credited() {
		credited++
	}
	for _, res := range polled {
		if res.Credited() {
			credited++
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, st, 1).Balance), "balance grows by 5.00, not 10.00")
}

func TestReconciler_CreditFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	base := newTestStore()
	w := seedWallet(t, base, 1, "0", "0")
	tx := seedPendingTopup(t, base, w, "5.00", pollURL)
	st := &faultyStore{Store: base, failCreditAvailable: true}
	r := NewReconciler(st, new(MockGateway), testLedger(), newTestMetrics(), quietLogger)

	_, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourceWebhook})
	assert.ErrorIs(t, err, errInjected)

	stored, err := base.Transactions().GetTransactionByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, stored.Status, "claim must roll back with the failed credit")
	assert.Nil(t, stored.CompletedAt)
	assert.True(t, walletOf(t, base, 1).Balance.IsZero())

	st.failCreditAvailable = false
	res, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourcePoll})
	require.NoError(t, err)
	assert.True(t, res.Credited())
	assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, base, 1).Balance))
}

func TestReconciler_AmountMismatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	tx := seedPendingTopup(t, st, w, "5.00", pollURL)
	r := NewReconciler(st, new(MockGateway), testLedger(), newTestMetrics(), quietLogger)

	_, err := r.Complete(ctx, tx.ID, Confirmation{Source: SourceWebhook, Amount: decimal.NewNullDecimal(dec("50.00"))})
	assert.ErrorIs(t, err, util.ErrAmountMismatch)

	stored, err := st.Transactions().GetTransactionByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, stored.Status)
	assert.True(t, walletOf(t, st, 1).Balance.IsZero())
}

func TestReconciler_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("Invalid signature", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		tx := seedPendingTopup(t, st, w, "5.00", pollURL)
		gw := new(MockGateway)
		gw.On("VerifyWebhook", mock.Anything).Return(false).Once()
		r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

		_, err := r.HandleWebhook(ctx, webhookFor(tx, "Paid"))
		assert.ErrorIs(t, err, util.ErrInvalidSignature)
		assert.True(t, walletOf(t, st, 1).Balance.IsZero())
		gw.AssertExpectations(t)
	})

	t.Run("Unknown reference", func(t *testing.T) {
		st := newTestStore()
		gw := new(MockGateway)
		gw.On("VerifyWebhook", mock.Anything).Return(true)
		r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

		_, err := r.HandleWebhook(ctx, gateway.WebhookPayload{Reference: "TOP-NOPE", Status: "Paid"})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("Cancelled then paid", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		tx := seedPendingTopup(t, st, w, "5.00", pollURL)
		gw := new(MockGateway)
		gw.On("VerifyWebhook", mock.Anything).Return(true)
		r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

		res, err := r.HandleWebhook(ctx, webhookFor(tx, "Cancelled"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Equal(t, domain.TransactionStatusCancelled, res.Status)

		res, err = r.HandleWebhook(ctx, webhookFor(tx, "Paid"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
		assert.Equal(t, domain.TransactionStatusCancelled, res.Status, "terminal rows are immutable")
		assert.True(t, walletOf(t, st, 1).Balance.IsZero())
	})

	t.Run("Not yet paid", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		tx := seedPendingTopup(t, st, w, "5.00", pollURL)
		gw := new(MockGateway)
		gw.On("VerifyWebhook", mock.Anything).Return(true)
		r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

		res, err := r.HandleWebhook(ctx, webhookFor(tx, "Sent"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeStillPending, res.Outcome)
		assert.Equal(t, domain.TransactionStatusPending, res.Status)
	})

	t.Run("Unknown status", func(t *testing.T) {
		st := newTestStore()
		w := seedWallet(t, st, 1, "0", "0")
		tx := seedPendingTopup(t, st, w, "5.00", pollURL)
		gw := new(MockGateway)
		gw.On("VerifyWebhook", mock.Anything).Return(true)
		r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

		_, err := r.HandleWebhook(ctx, webhookFor(tx, "Exploded"))
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})
}

func TestReconciler_CheckPending(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	paid := seedPendingTopup(t, st, w, "5.00", "https://pay.example/poll?guid=paid")
	down := seedPendingTopup(t, st, w, "7.00", "https://pay.example/poll?guid=down")
	unsent := seedPendingTopup(t, st, w, "9.00", "")

	gw := new(MockGateway)
	gw.On("PollStatus", mock.Anything, "https://pay.example/poll?guid=paid").Return(paidStatus(paid, gateway.StatusDelivered), nil).Once()
	gw.On("PollStatus", mock.Anything, "https://pay.example/poll?guid=down").
		Return(nil, &gateway.GatewayError{Kind: gateway.ErrorKindNetwork, Op: "poll"}).Once()
	r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

	results, err := r.CheckPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[int64]ReconcileResult{}
	for _, res := range results {
		byID[res.TransactionID] = res
	}
	assert.Equal(t, OutcomeCredited, byID[paid.ID].Outcome)
	assert.Equal(t, OutcomeError, byID[down.ID].Outcome)
	assert.Equal(t, "payment gateway unavailable, try again later", byID[down.ID].Error)
	assert.Equal(t, OutcomeStillPending, byID[unsent.ID].Outcome)

	stored, err := st.Transactions().GetTransactionByID(ctx, down.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, stored.Status, "gateway errors never fail a top-up")
	assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, st, 1).Balance))
	gw.AssertExpectations(t)
}

func TestReconciler_CheckOne(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	w := seedWallet(t, st, 1, "0", "0")
	seedWallet(t, st, 2, "0", "0")
	tx := seedPendingTopup(t, st, w, "5.00", pollURL)

	gw := new(MockGateway)
	gw.On("PollStatus", mock.Anything, pollURL).Return(paidStatus(tx, gateway.StatusPaid), nil).Once()
	r := NewReconciler(st, gw, testLedger(), newTestMetrics(), quietLogger)

	_, err := r.CheckOne(ctx, 2, tx.ID)
	assert.ErrorIs(t, err, util.ErrNotFound, "other users cannot see the transaction")

	res, err := r.CheckOne(ctx, 1, tx.ID)
	require.NoError(t, err)
	assert.True(t, res.Credited())

	res, err = r.CheckOne(ctx, 1, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	gw.AssertExpectations(t)
}
