// internal/service/wallet_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"
)

// WalletService defines the interface for wallet-related business logic.
type WalletService interface {
	OpenWallet(ctx context.Context, userID int64, currency string) (*domain.Wallet, bool, error)
	GetBalance(ctx context.Context, userID int64) (*domain.Wallet, error)
	GetTransactionHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, int64, error)
}

// walletService implements the WalletService interface.
type walletService struct {
	store    repository.Store
	currency string
}

// NewWalletService creates a new instance of WalletService.
func NewWalletService(store repository.Store, defaultCurrency string) WalletService {
	return &walletService{store: store, currency: defaultCurrency}
}

// OpenWallet creates the user's wallet, or returns the existing one with
// created=false. Wallets are one per user and never deleted.
func (s *walletService) OpenWallet(ctx context.Context, userID int64, currency string) (*domain.Wallet, bool, error) {
	if userID <= 0 {
		return nil, false, util.InvalidInput("user id must be positive")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 {
		return nil, false, util.InvalidInput("currency must be a 3-letter ISO code")
	}

	wallet := domain.NewWallet(userID, currency)
	err := s.store.Wallets().CreateWallet(ctx, wallet)
	if errors.Is(err, util.ErrDuplicateEntry) {
		existing, getErr := s.store.Wallets().GetWalletByUserID(ctx, userID)
		if getErr != nil {
			return nil, false, fmt.Errorf("open wallet: %w", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open wallet: %w", err)
	}
	return wallet, true, nil
}

// GetBalance returns the user's wallet with its available and pending balances.
func (s *walletService) GetBalance(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet, err := s.store.Wallets().GetWalletByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: failed to get wallet for user %d: %w", userID, err)
	}
	return wallet, nil
}

// GetTransactionHistory retrieves a paginated list of transactions for the user's wallet.
func (s *walletService) GetTransactionHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	// First, check if the wallet exists
	wallet, err := s.store.Wallets().GetWalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, 0, util.ErrWalletNotFound
		}
		return nil, 0, fmt.Errorf("failed to check wallet existence: %w", err)
	}

	// Call repository to get transactions and total count
	transactions, totalCount, err := s.store.Transactions().GetTransactionsByWalletID(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	return transactions, totalCount, nil
}
