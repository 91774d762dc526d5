package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/repository/memory"
	"ridewallet/internal/secure"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLedger() LedgerConfig {
	return LedgerConfig{
		Currency:        "USD",
		RideFee:         domain.FlatRate(dec("0.10")),
		TopupMin:        dec("1.00"),
		TopupMax:        dec("10000.00"),
		Location:        time.UTC,
		PollConcurrency: 4,
	}
}

func testCipher(t *testing.T) *secure.Cipher {
	t.Helper()
	c, err := secure.NewCipher(testEncryptionKey)
	require.NoError(t, err)
	return c
}

// seedWallet opens a wallet for userID and funds it.
func seedWallet(t *testing.T, st repository.Store, userID int64, balance, pending string, opts ...func(*domain.Wallet)) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	w := domain.NewWallet(userID, "USD")
	for _, o := range opts {
		o(w)
	}
	require.NoError(t, st.Wallets().CreateWallet(ctx, w))
	if b := dec(balance); b.IsPositive() {
		_, err := st.Wallets().CreditAvailable(ctx, w.ID, b)
		require.NoError(t, err)
	}
	if p := dec(pending); p.IsPositive() {
		_, err := st.Wallets().CreditPending(ctx, w.ID, p)
		require.NoError(t, err)
	}
	fresh, err := st.Wallets().GetWalletByID(ctx, w.ID)
	require.NoError(t, err)
	return fresh
}

func withDailySpendLimit(limit string) func(*domain.Wallet) {
	return func(w *domain.Wallet) { w.DailySpendLimit = decimal.NewNullDecimal(dec(limit)) }
}

func withDailyTopupLimit(limit string) func(*domain.Wallet) {
	return func(w *domain.Wallet) { w.DailyTopupLimit = decimal.NewNullDecimal(dec(limit)) }
}

func walletOf(t *testing.T, st repository.Store, userID int64) *domain.Wallet {
	t.Helper()
	w, err := st.Wallets().GetWalletByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func historyOf(t *testing.T, st repository.Store, walletID int64) []domain.Transaction {
	t.Helper()
	txs, _, err := st.Transactions().GetTransactionsByWalletID(context.Background(), walletID, 100, 0)
	require.NoError(t, err)
	return txs
}

// seedPendingTopup stores a pending top-up as InitiateTopup would leave it.
func seedPendingTopup(t *testing.T, st repository.Store, w *domain.Wallet, amount, pollURL string) *domain.Transaction {
	t.Helper()
	tx := domain.NewTransaction(w.UserID, nil, &w.ID, dec(amount), w.Currency, domain.TransactionTypeTopup, domain.TransactionStatusPending)
	tx.Metadata = domain.Metadata{"channel": "web"}
	if pollURL != "" {
		tx.PollURL = &pollURL
	}
	require.NoError(t, st.Transactions().CreateTransaction(context.Background(), tx))
	return tx
}

// MockGateway is a mock implementation of PaymentGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResponse), args.Error(1)
}

func (m *MockGateway) PollStatus(ctx context.Context, pollURL string) (*gateway.StatusResult, error) {
	args := m.Called(ctx, pollURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}

func (m *MockGateway) VerifyWebhook(payload gateway.WebhookPayload) bool {
	return m.Called(payload).Bool(0)
}

var errInjected = errors.New("injected storage failure")

// faultyStore fails selected wallet credits, inside transactions too.
type faultyStore struct {
	repository.Store
	failCreditAvailable bool
	failCreditPending   bool
}

func (f *faultyStore) Wallets() repository.WalletRepository {
	return &faultyWallets{WalletRepository: f.Store.Wallets(), f: f}
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, inner repository.Store) error {
		return fn(ctx, &faultyStore{Store: inner, failCreditAvailable: f.failCreditAvailable, failCreditPending: f.failCreditPending})
	})
}

type faultyWallets struct {
	repository.WalletRepository
	f *faultyStore
}

func (w *faultyWallets) CreditAvailable(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if w.f.failCreditAvailable {
		return decimal.Zero, errInjected
	}
	return w.WalletRepository.CreditAvailable(ctx, walletID, amount)
}

func (w *faultyWallets) CreditPending(ctx context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if w.f.failCreditPending {
		return decimal.Zero, errInjected
	}
	return w.WalletRepository.CreditPending(ctx, walletID, amount)
}

func newTestStore() *memory.Store { return memory.NewStore() }

func newTestMetrics() *metrics.Metrics { return metrics.New() }

var quietLogger = util.DiscardLogger()
