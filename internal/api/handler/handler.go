// internal/api/handler/handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ridewallet/internal/api/middleware"
	"ridewallet/internal/api/types"
	"ridewallet/internal/domain"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds every request handled by the router.
const DefaultTimeout = 30 * time.Second

const maxBodyBytes = 1 << 20

// errorStatus maps an error kind to its HTTP status and, when non-empty, a
// fixed client message. Kinds without a fixed message echo the error text.
var errorStatus = map[util.Kind]struct {
	code    int
	message string
}{
	util.KindInvalidInput:          {http.StatusBadRequest, ""},
	util.KindInsufficientFunds:     {http.StatusPaymentRequired, "Insufficient funds"},
	util.KindInvalidSession:        {http.StatusBadRequest, "Driver session is invalid or expired"},
	util.KindSelfPaymentNotAllowed: {http.StatusBadRequest, "Cannot pay yourself"},
	util.KindDailyLimitExceeded:    {http.StatusUnprocessableEntity, "Daily limit exceeded"},
	util.KindGatewayError:          {http.StatusBadGateway, "Payment gateway unavailable, try again later"},
	util.KindInvalidSignature:      {http.StatusUnauthorized, "Invalid signature"},
	util.KindAlreadyProcessed:      {http.StatusConflict, "Already processed"},
	util.KindWalletNotFound:        {http.StatusNotFound, "Wallet not found"},
	util.KindNotFound:              {http.StatusNotFound, "Resource not found"},
	util.KindDecryptionFailure:     {http.StatusInternalServerError, "Internal server error"},
	util.KindForbidden:             {http.StatusForbidden, "Forbidden"},
	util.KindUnauthorized:          {http.StatusUnauthorized, "Unauthorized"},
	util.KindRateLimited:           {http.StatusTooManyRequests, "Too many requests"},
	util.KindConflict:              {http.StatusConflict, "Request conflicts with an earlier one"},
	util.KindInternal:              {http.StatusInternalServerError, "Internal server error"},
}

// responder carries the JSON helpers shared by every handler.
type responder struct {
	logger *slog.Logger
}

// Helper function to send JSON responses.
func (h responder) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	types.WriteJSON(w, h.logger, code, payload)
}

// Helper function to send error responses.
func (h responder) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	kind := util.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		status = errorStatus[util.KindInternal]
	}
	message := status.message
	if message == "" {
		message = err.Error()
	}
	if status.code >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	}
	types.WriteError(w, h.logger, status.code, string(kind), message)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return util.InvalidInput("malformed JSON body: %v", err)
	}
	return nil
}

// currentUser returns the authenticated caller's id.
func currentUser(r *http.Request) (int64, error) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, util.ErrUnauthorized
	}
	return id, nil
}

// idempotencyKey prefers the body field and falls back to the Idempotency-Key header.
func idempotencyKey(r *http.Request, fromBody string) string {
	if k := strings.TrimSpace(fromBody); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func money(d decimal.Decimal) string { return domain.FormatMoney(d) }

func optionalMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, util.InvalidInput("id must be a positive integer")
	}
	return id, nil
}
