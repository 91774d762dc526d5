package service

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/secure"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = domain.BankAccount{
	BankName:          "CBZ",
	AccountNumber:     "01234567890123",
	AccountHolderName: "T. Moyo",
	BranchCode:        "6101",
	Country:           "ZW",
	Currency:          "USD",
}

func testSettlementConfig() SettlementConfig {
	return SettlementConfig{MinPayout: dec("10.00"), FeeRate: dec("0.02")}
}

func registerAccount(t *testing.T, st repository.Store, c *secure.Cipher, driverID int64) {
	t.Helper()
	details, err := c.SealBankAccount(driverID, testAccount)
	require.NoError(t, err)
	details.CreatedAt = time.Now().UTC()
	details.UpdatedAt = details.CreatedAt
	require.NoError(t, st.Drivers().UpsertBankDetails(context.Background(), details))
}

// seedRide records a completed ride payment into the driver's wallet.
func seedRide(t *testing.T, st repository.Store, rider, driver *domain.Wallet, amount string) {
	t.Helper()
	tx := domain.NewTransaction(rider.UserID, &rider.ID, &driver.ID, dec(amount), "USD",
		domain.TransactionTypeRidePayment, domain.TransactionStatusCompleted)
	tx.Metadata = domain.Metadata{"fare": amount, "tip": "0.00", "driver_id": driver.UserID}
	require.NoError(t, st.Transactions().CreateTransaction(context.Background(), tx))
}

func newSettlementFixture(t *testing.T) (*settlementService, repository.Store) {
	t.Helper()
	st := newTestStore()
	svc := NewSettlementService(st, testCipher(t), testSettlementConfig(), testLedger(), newTestMetrics(), quietLogger)
	return svc.(*settlementService), st
}

func TestSettlementService_RunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Threshold", func(t *testing.T) {
		svc, st := newSettlementFixture(t)
		c := testCipher(t)
		below := seedWallet(t, st, 200, "0", "9.99")
		at := seedWallet(t, st, 201, "0", "10.00")
		registerAccount(t, st, c, 200)
		registerAccount(t, st, c, 201)

		res, err := svc.RunBatch(ctx, BatchRequest{Period: "weekly"})
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, int64(201), res.Lines[0].Settlement.DriverID)

		assert.Equal(t, "9.99", domain.FormatMoney(walletOf(t, st, below.UserID).PendingBalance))
		assert.True(t, walletOf(t, st, at.UserID).PendingBalance.IsZero())
	})

	t.Run("Settles pending balance", func(t *testing.T) {
		svc, st := newSettlementFixture(t)
		c := testCipher(t)
		rider := seedWallet(t, st, 100, "50", "0")
		driver := seedWallet(t, st, 200, "0", "120.50")
		registerAccount(t, st, c, 200)
		seedRide(t, st, rider, driver, "11.00")
		seedRide(t, st, rider, driver, "22.00")
		svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

		res, err := svc.RunBatch(ctx, BatchRequest{Period: "weekly"})
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)

		s := res.Lines[0].Settlement
		assert.NotZero(t, s.ID)
		assert.Equal(t, "120.50", domain.FormatMoney(s.GrossAmount))
		assert.Equal(t, "2.41", domain.FormatMoney(s.Fees))
		assert.Equal(t, "118.09", domain.FormatMoney(s.NetAmount))
		assert.True(t, s.GrossAmount.Equal(s.Fees.Add(s.NetAmount)))
		assert.Equal(t, 2, s.TransactionCount)
		assert.Equal(t, domain.SettlementStatusPending, s.Status)
		assert.Equal(t, "118.09", domain.FormatMoney(res.TotalNet))

		assert.True(t, walletOf(t, st, 200).PendingBalance.IsZero())

		var payout *domain.Transaction
		for _, tx := range historyOf(t, st, driver.ID) {
			if tx.Type == domain.TransactionTypeSettlement {
				payout = &tx
			}
		}
		require.NotNil(t, payout)
		assert.Equal(t, domain.TransactionStatusCompleted, payout.Status)
		assert.Equal(t, "120.50", domain.FormatMoney(payout.Amount))
		assert.Equal(t, "2.41", domain.FormatMoney(payout.Fee))
		assert.Equal(t, res.BatchID, payout.Metadata.String("batch_id"))

		stored, err := svc.ListBatch(ctx, res.BatchID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		snapshot, err := c.OpenSnapshot(stored[0].BankDetailsSnapshot)
		require.NoError(t, err)
		assert.Equal(t, testAccount, snapshot)
		assert.NotContains(t, stored[0].BankDetailsSnapshot, testAccount.AccountNumber)

		records, err := csv.NewReader(strings.NewReader(res.CSV)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "batch_id", records[0][0])
		assert.Contains(t, records[1], testAccount.AccountNumber)
		assert.Contains(t, records[1], "118.09")
	})

	t.Run("Dry run writes nothing", func(t *testing.T) {
		svc, st := newSettlementFixture(t)
		c := testCipher(t)
		driver := seedWallet(t, st, 200, "0", "40.00")
		registerAccount(t, st, c, 200)

		res, err := svc.RunBatch(ctx, BatchRequest{Period: "daily", DryRun: true})
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)
		assert.True(t, res.DryRun)
		assert.Equal(t, "39.20", domain.FormatMoney(res.Lines[0].Settlement.NetAmount))

		assert.Equal(t, "40.00", domain.FormatMoney(walletOf(t, st, 200).PendingBalance))
		assert.Empty(t, historyOf(t, st, driver.ID))
		stored, err := svc.ListBatch(ctx, res.BatchID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("Skips drivers it cannot pay", func(t *testing.T) {
		svc, st := newSettlementFixture(t)
		c := testCipher(t)
		other, err := secure.NewCipher(strings.Repeat("ab", 32))
		require.NoError(t, err)

		seedWallet(t, st, 200, "0", "30.00")
		seedWallet(t, st, 201, "0", "30.00")
		seedWallet(t, st, 202, "0", "30.00")
		registerAccount(t, st, c, 200)
		registerAccount(t, st, other, 201)

		res, err := svc.RunBatch(ctx, BatchRequest{})
		require.NoError(t, err)
		assert.Equal(t, "weekly", res.Period.Name)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, int64(200), res.Lines[0].Settlement.DriverID)
		assert.ElementsMatch(t, []SkippedDriver{
			{DriverID: 201, Reason: SkipDecryptionFailure},
			{DriverID: 202, Reason: SkipNoBankDetails},
		}, res.Skipped)

		assert.Equal(t, "30.00", domain.FormatMoney(walletOf(t, st, 201).PendingBalance))
		assert.Equal(t, "30.00", domain.FormatMoney(walletOf(t, st, 202).PendingBalance))
	})

	t.Run("Single driver with overrides", func(t *testing.T) {
		svc, st := newSettlementFixture(t)
		c := testCipher(t)
		seedWallet(t, st, 200, "0", "5.00")
		seedWallet(t, st, 201, "0", "5.00")
		registerAccount(t, st, c, 200)
		registerAccount(t, st, c, 201)

		driver := int64(201)
		res, err := svc.RunBatch(ctx, BatchRequest{
			DriverID:  &driver,
			MinPayout: decimal.NewNullDecimal(dec("1.00")),
			FeeRate:   decimal.NewNullDecimal(decimal.Zero),
		})
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, int64(201), res.Lines[0].Settlement.DriverID)
		assert.Equal(t, "5.00", domain.FormatMoney(res.Lines[0].Settlement.NetAmount))
		assert.Equal(t, "5.00", domain.FormatMoney(walletOf(t, st, 200).PendingBalance))
	})

	t.Run("Invalid requests", func(t *testing.T) {
		svc, _ := newSettlementFixture(t)

		_, err := svc.RunBatch(ctx, BatchRequest{Period: "yearly"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)

		_, err = svc.RunBatch(ctx, BatchRequest{FeeRate: decimal.NewNullDecimal(dec("1.5"))})
		assert.ErrorIs(t, err, util.ErrInvalidInput)

		_, err = svc.ListBatch(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})
}
