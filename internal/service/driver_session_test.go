package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverSessionService(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) (*driverSessionService, *domain.Wallet) {
		st := newTestStore()
		w := seedWallet(t, st, 200, "0", "0")
		seedWallet(t, st, 201, "0", "0")
		svc := NewDriverSessionService(st, testCipher(t), 10*time.Minute, quietLogger)
		return svc.(*driverSessionService), w
	}

	t.Run("Issue and resolve", func(t *testing.T) {
		svc, _ := newService(t)

		session, err := svc.Issue(ctx, 200)
		require.NoError(t, err)
		assert.Len(t, session.Token, 32)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), session.ExpiresAt, 5*time.Second)

		resolved, err := svc.Resolve(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(200), resolved.DriverID)

		again, err := svc.Issue(ctx, 200)
		require.NoError(t, err)
		assert.NotEqual(t, session.Token, again.Token)
	})

	t.Run("Issue requires a wallet", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Issue(ctx, 999)
		assert.ErrorIs(t, err, util.ErrWalletNotFound)
	})

	t.Run("Unknown and expired tokens", func(t *testing.T) {
		svc, _ := newService(t)
		session, err := svc.Issue(ctx, 200)
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, util.ErrInvalidSession)

		svc.now = func() time.Time { return session.ExpiresAt }
		_, err = svc.Resolve(ctx, session.Token)
		assert.ErrorIs(t, err, util.ErrInvalidSession)
	})

	t.Run("QR code", func(t *testing.T) {
		svc, _ := newService(t)
		session, err := svc.Issue(ctx, 200)
		require.NoError(t, err)

		png, err := svc.QRCode(ctx, 200, session.Token)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

		_, err = svc.QRCode(ctx, 201, session.Token)
		assert.ErrorIs(t, err, util.ErrForbidden)
	})

	t.Run("Bank account is stored encrypted", func(t *testing.T) {
		svc, _ := newService(t)

		details, err := svc.RegisterBankAccount(ctx, 200, testAccount)
		require.NoError(t, err)
		assert.NotEqual(t, testAccount.AccountNumber, details.AccountNumber)

		stored, err := svc.store.Drivers().GetBankDetails(ctx, 200)
		require.NoError(t, err)
		assert.NotContains(t, stored.AccountNumber, testAccount.AccountNumber)
		assert.NotContains(t, stored.BankName, testAccount.BankName)

		opened, err := testCipher(t).OpenBankAccount(stored)
		require.NoError(t, err)
		assert.Equal(t, testAccount, opened)

		_, err = svc.RegisterBankAccount(ctx, 200, domain.BankAccount{BankName: "CBZ"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})
}
