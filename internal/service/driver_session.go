// internal/service/driver_session.go
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/secure"
	"ridewallet/internal/util"

	"github.com/skip2/go-qrcode"
)

// DriverSessionService issues the short-lived tokens drivers show riders, and
// keeps the driver's payout account.
type DriverSessionService interface {
	Issue(ctx context.Context, driverID int64) (*domain.DriverSession, error)
	Resolve(ctx context.Context, token string) (*domain.DriverSession, error)
	QRCode(ctx context.Context, driverID int64, token string) ([]byte, error)
	RegisterBankAccount(ctx context.Context, driverID int64, account domain.BankAccount) (*domain.DriverBankDetails, error)
}

type driverSessionService struct {
	store  repository.Store
	cipher *secure.Cipher
	ttl    time.Duration
	scheme string
	logger *slog.Logger
	now    func() time.Time
}

// NewDriverSessionService creates a new DriverSessionService. Tokens live for ttl.
func NewDriverSessionService(store repository.Store, cipher *secure.Cipher, ttl time.Duration, logger *slog.Logger) DriverSessionService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &driverSessionService{
		store:  store,
		cipher: cipher,
		ttl:    ttl,
		scheme: "ridepay://pay",
		logger: logger,
		now:    time.Now,
	}
}

func newSessionToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a new session for a driver who owns a wallet.
func (s *driverSessionService) Issue(ctx context.Context, driverID int64) (*domain.DriverSession, error) {
	if _, err := s.store.Wallets().GetWalletByUserID(ctx, driverID); err != nil {
		return nil, fmt.Errorf("issue driver session: %w", err)
	}
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session := &domain.DriverSession{
		Token:     token,
		DriverID:  driverID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Drivers().CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("issue driver session: %w", err)
	}
	s.logger.Info("Driver session issued", "driver_id", driverID, "expires_at", session.ExpiresAt)
	return session, nil
}

// Resolve returns the active session for token. Unknown and expired tokens
// are indistinguishable to the caller.
func (s *driverSessionService) Resolve(ctx context.Context, token string) (*domain.DriverSession, error) {
	session, err := s.store.Drivers().GetSession(ctx, strings.TrimSpace(token))
	if errors.Is(err, util.ErrNotFound) {
		return nil, util.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("resolve driver session: %w", err)
	}
	if !session.ActiveAt(s.now()) {
		return nil, util.ErrInvalidSession
	}
	return session, nil
}

// QRCode renders the pay link for one of the driver's own active sessions as a PNG.
func (s *driverSessionService) QRCode(ctx context.Context, driverID int64, token string) ([]byte, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.DriverID != driverID {
		return nil, util.ErrForbidden
	}
	link := s.scheme + "?session=" + url.QueryEscape(session.Token)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render session QR code: %w", err)
	}
	return png, nil
}

// RegisterBankAccount encrypts and stores the driver's payout account.
func (s *driverSessionService) RegisterBankAccount(ctx context.Context, driverID int64, account domain.BankAccount) (*domain.DriverBankDetails, error) {
	if strings.TrimSpace(account.BankName) == "" || strings.TrimSpace(account.AccountNumber) == "" || strings.TrimSpace(account.AccountHolderName) == "" {
		return nil, util.InvalidInput("bank name, account number and account holder are required")
	}
	details, err := s.cipher.SealBankAccount(driverID, account)
	if err != nil {
		return nil, fmt.Errorf("register bank account: %w", err)
	}
	now := s.now().UTC()
	details.CreatedAt = now
	details.UpdatedAt = now
	if err := s.store.Drivers().UpsertBankDetails(ctx, details); err != nil {
		return nil, fmt.Errorf("register bank account: %w", err)
	}
	s.logger.Info("Driver bank account registered", "driver_id", driverID, "account", account.MaskedAccountNumber())
	return details, nil
}
