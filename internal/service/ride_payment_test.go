package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	riderID  int64 = 100
	driverID int64 = 200
)

type rideFixture struct {
	store    repository.Store
	sessions *driverSessionService
	payments *ridePaymentService
	token    string
}

func newRideFixture(t *testing.T, st repository.Store) *rideFixture {
	t.Helper()
	sessions := NewDriverSessionService(st, testCipher(t), 10*time.Minute, quietLogger).(*driverSessionService)
	payments := NewRidePaymentService(st, sessions, testLedger(), newTestMetrics(), quietLogger).(*ridePaymentService)
	session, err := sessions.Issue(context.Background(), driverID)
	require.NoError(t, err)
	return &rideFixture{store: st, sessions: sessions, payments: payments, token: session.Token}
}

func TestRidePayment_Scenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	rider := seedWallet(t, st, riderID, "20.00", "0")
	driver := seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	res, err := fx.payments.Pay(ctx, RidePaymentRequest{
		RiderID:            riderID,
		DriverSessionToken: fx.token,
		Amount:             dec("10.00"),
		Tip:                dec("1.00"),
		IdempotencyKey:     "ride-1",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "9.00", domain.FormatMoney(res.PayerNewBalance))

	assert.Equal(t, "9.00", domain.FormatMoney(walletOf(t, st, riderID).Balance))
	assert.Equal(t, "10.00", domain.FormatMoney(walletOf(t, st, driverID).PendingBalance))

	tx := res.Transaction
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, domain.TransactionTypeRidePayment, tx.Type)
	assert.Equal(t, "11.00", domain.FormatMoney(tx.Amount))
	assert.Equal(t, "1.00", domain.FormatMoney(tx.Fee))
	assert.Equal(t, "10.00", domain.FormatMoney(tx.NetAmount))
	assert.NotNil(t, tx.CompletedAt)
	assert.Equal(t, rider.ID, *tx.FromWalletID)
	assert.Equal(t, driver.ID, *tx.ToWalletID)
	assert.Equal(t, "10.00", tx.Metadata.String("fare"))

	// Conservation: what left the rider is the driver's credit plus the platform fee.
	riderDelta := dec("20.00").Sub(walletOf(t, st, riderID).Balance)
	driverDelta := walletOf(t, st, driverID).PendingBalance
	assert.True(t, riderDelta.Equal(tx.Amount))
	assert.True(t, driverDelta.Add(tx.Fee).Equal(tx.Amount))

	assert.Len(t, historyOf(t, st, rider.ID), 1)
}

func TestRidePayment_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("Non-positive amount", func(t *testing.T) {
		st := newTestStore()
		seedWallet(t, st, riderID, "20", "0")
		seedWallet(t, st, driverID, "0", "0")
		fx := newRideFixture(t, st)

		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("0")})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("Negative tip", func(t *testing.T) {
		st := newTestStore()
		seedWallet(t, st, riderID, "20", "0")
		seedWallet(t, st, driverID, "0", "0")
		fx := newRideFixture(t, st)

		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("5"), Tip: dec("-1")})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("Unknown session", func(t *testing.T) {
		st := newTestStore()
		seedWallet(t, st, riderID, "20", "0")
		seedWallet(t, st, driverID, "0", "0")
		fx := newRideFixture(t, st)

		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: "forged", Amount: dec("5")})
		assert.ErrorIs(t, err, util.ErrInvalidSession)
	})

	t.Run("Expired session", func(t *testing.T) {
		st := newTestStore()
		seedWallet(t, st, riderID, "20", "0")
		seedWallet(t, st, driverID, "0", "0")
		fx := newRideFixture(t, st)
		fx.sessions.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("5")})
		assert.ErrorIs(t, err, util.ErrInvalidSession)
		assert.Equal(t, "20.00", domain.FormatMoney(walletOf(t, st, riderID).Balance))
	})

	t.Run("Self payment", func(t *testing.T) {
		st := newTestStore()
		seedWallet(t, st, driverID, "20", "0")
		fx := newRideFixture(t, st)

		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: driverID, DriverSessionToken: fx.token, Amount: dec("5")})
		assert.ErrorIs(t, err, util.ErrSelfPaymentNotAllowed)
		assert.Equal(t, "20.00", domain.FormatMoney(walletOf(t, st, driverID).Balance))
	})
}

func TestRidePayment_InsufficientFunds(t *testing.T) {
	st := newTestStore()
	rider := seedWallet(t, st, riderID, "10.50", "0")
	seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	_, err := fx.payments.Pay(context.Background(), RidePaymentRequest{
		RiderID:            riderID,
		DriverSessionToken: fx.token,
		Amount:             dec("10.00"),
		Tip:                dec("1.00"),
	})
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)
	assert.Equal(t, "10.50", domain.FormatMoney(walletOf(t, st, riderID).Balance))
	assert.True(t, walletOf(t, st, driverID).PendingBalance.IsZero())
	assert.Empty(t, historyOf(t, st, rider.ID))
}

func TestRidePayment_DailySpendLimit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	seedWallet(t, st, riderID, "100", "0", withDailySpendLimit("15.00"))
	seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10"), Tip: dec("1")})
	require.NoError(t, err)

	_, err = fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("4"), Tip: dec("0.01")})
	assert.ErrorIs(t, err, util.ErrDailyLimitExceeded)

	_, err = fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("4")})
	require.NoError(t, err, "exactly reaching the limit is allowed")

	// A new local day resets the window.
	fx.payments.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	fx.sessions.now = time.Now
	_, err = fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10")})
	require.NoError(t, err)
}

func TestRidePayment_Idempotency(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	rider := seedWallet(t, st, riderID, "50", "0")
	seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	req := RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10"), IdempotencyKey: "ride-42"}
	first, err := fx.payments.Pay(ctx, req)
	require.NoError(t, err)
	second, err := fx.payments.Pay(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, "40.00", domain.FormatMoney(walletOf(t, st, riderID).Balance))
	assert.Len(t, historyOf(t, st, rider.ID), 1)

	t.Run("Key reused by another rider", func(t *testing.T) {
		seedWallet(t, st, 300, "50", "0")
		_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: 300, DriverSessionToken: fx.token, Amount: dec("10"), IdempotencyKey: "ride-42"})
		assert.ErrorIs(t, err, util.ErrDuplicateEntry)
		assert.Equal(t, "50.00", domain.FormatMoney(walletOf(t, st, 300).Balance))
	})
}

func TestRidePayment_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	rider := seedWallet(t, st, riderID, "50", "0")
	seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	const callers = 8
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10"), IdempotencyKey: "double-tap"})
			if assert.NoError(t, err) {
				ids[i] = res.Transaction.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, "40.00", domain.FormatMoney(walletOf(t, st, riderID).Balance))
	assert.Equal(t, "9.00", domain.FormatMoney(walletOf(t, st, driverID).PendingBalance))
	assert.Len(t, historyOf(t, st, rider.ID), 1)
}

func TestRidePayment_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	seedWallet(t, st, riderID, "10", "0")
	seedWallet(t, st, driverID, "0", "0")
	fx := newRideFixture(t, st)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("6")})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, util.ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, "4.00", domain.FormatMoney(walletOf(t, st, riderID).Balance))
}

func TestRidePayment_DriverCreditFailureRollsBackDebit(t *testing.T) {
	ctx := context.Background()
	base := newTestStore()
	rider := seedWallet(t, base, riderID, "20", "0")
	seedWallet(t, base, driverID, "0", "0")
	st := &faultyStore{Store: base, failCreditPending: true}
	fx := newRideFixture(t, st)

	_, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10"), IdempotencyKey: "k"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, "20.00", domain.FormatMoney(walletOf(t, base, riderID).Balance), "rider debit must roll back")
	assert.True(t, walletOf(t, base, driverID).PendingBalance.IsZero())
	assert.Empty(t, historyOf(t, base, rider.ID))

	// The key was never consumed, so a retry goes through once storage recovers.
	st.failCreditPending = false
	res, err := fx.payments.Pay(ctx, RidePaymentRequest{RiderID: riderID, DriverSessionToken: fx.token, Amount: dec("10"), IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}
