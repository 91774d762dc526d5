// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
)

// Common application-specific errors.
var (
	ErrNotFound              = errors.New("resource not found")
	ErrInvalidInput          = errors.New("invalid input provided")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrDuplicateEntry        = errors.New("duplicate entry")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrInvalidSession        = errors.New("driver session is invalid or expired")
	ErrSelfPaymentNotAllowed = errors.New("cannot pay yourself")
	ErrDailyLimitExceeded    = errors.New("daily limit exceeded")
	ErrGateway               = errors.New("payment gateway error")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrAlreadyProcessed      = errors.New("already processed")
	ErrDecryptionFailure     = errors.New("decryption failure")
	ErrAmountMismatch        = errors.New("amount mismatch")
	ErrForbidden             = errors.New("forbidden")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrRateLimited           = errors.New("too many requests")
)

// Kind is the stable machine-readable error category returned to API clients.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindInvalidSession        Kind = "invalid_session"
	KindSelfPaymentNotAllowed Kind = "self_payment_not_allowed"
	KindDailyLimitExceeded    Kind = "daily_limit_exceeded"
	KindGatewayError          Kind = "gateway_error"
	KindInvalidSignature      Kind = "invalid_signature"
	KindAlreadyProcessed      Kind = "already_processed"
	KindWalletNotFound        Kind = "wallet_not_found"
	KindNotFound              Kind = "not_found"
	KindDecryptionFailure     Kind = "decryption_failure"
	KindForbidden             Kind = "forbidden"
	KindUnauthorized          Kind = "unauthorized"
	KindRateLimited           Kind = "rate_limited"
	KindConflict              Kind = "conflict"
	KindInternal              Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrCurrencyMismatch, KindInvalidInput},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrInvalidSession, KindInvalidSession},
	{ErrSelfPaymentNotAllowed, KindSelfPaymentNotAllowed},
	{ErrDailyLimitExceeded, KindDailyLimitExceeded},
	{ErrGateway, KindGatewayError},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrAlreadyProcessed, KindAlreadyProcessed},
	{ErrWalletNotFound, KindWalletNotFound},
	{ErrNotFound, KindNotFound},
	{ErrDecryptionFailure, KindDecryptionFailure},
	{ErrForbidden, KindForbidden},
	{ErrUnauthorized, KindUnauthorized},
	{ErrRateLimited, KindRateLimited},
	{ErrDuplicateEntry, KindConflict},
	{ErrAmountMismatch, KindConflict},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// InvalidInput wraps ErrInvalidInput with a human readable reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
