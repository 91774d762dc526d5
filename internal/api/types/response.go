// internal/api/types/response.go
package types

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PaginatedResponse defines a generic structure for paginated API responses.
// T represents the type of data contained in the 'Data' slice.
type PaginatedResponse[T any] struct {
	Data       []T   `json:"data"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	TotalCount int64 `json:"total_count"`
}

// ErrorDetail is the machine kind plus a human message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// WalletResponse is a wallet with money rendered to two decimals.
type WalletResponse struct {
	WalletID        int64   `json:"walletId"`
	UserID          int64   `json:"userId"`
	Currency        string  `json:"currency"`
	Balance         string  `json:"balance"`
	PendingBalance  string  `json:"pendingBalance"`
	DailyTopupLimit *string `json:"dailyTopupLimit,omitempty"`
	DailySpendLimit *string `json:"dailySpendLimit,omitempty"`
}

// TopupResponse is returned by POST /v1/topups.
type TopupResponse struct {
	TransactionID int64  `json:"transactionId"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	BrowserURL    string `json:"browserUrl,omitempty"`
	PollURL       string `json:"pollUrl,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// RidePaymentResponse is returned by POST /v1/ride-payments.
type RidePaymentResponse struct {
	TransactionID   int64  `json:"transactionId"`
	Reference       string `json:"reference"`
	Amount          string `json:"amount"`
	Fee             string `json:"fee"`
	PayerNewBalance string `json:"payerNewBalance,omitempty"`
}

// SessionResponse is returned by POST /v1/driver/sessions.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	QRPath    string    `json:"qrPath"`
}

// SettlementLineResponse is one settled driver, without bank details.
type SettlementLineResponse struct {
	SettlementID     int64  `json:"settlementId,omitempty"`
	DriverID         int64  `json:"driverId"`
	GrossAmount      string `json:"grossAmount"`
	Fees             string `json:"fees"`
	NetAmount        string `json:"netAmount"`
	TransactionCount int    `json:"transactionCount"`
	Account          string `json:"account"` // masked
}

// SkippedResponse is a driver left out of a batch.
type SkippedResponse struct {
	DriverID int64  `json:"driverId"`
	Reason   string `json:"reason"`
}

// SettlementBatchResponse is returned by POST /v1/admin/settlements.
type SettlementBatchResponse struct {
	BatchID         string                   `json:"batchId"`
	Period          string                   `json:"period"`
	PeriodStart     time.Time                `json:"periodStart"`
	PeriodEnd       time.Time                `json:"periodEnd"`
	DryRun          bool                     `json:"dryRun"`
	SettlementCount int                      `json:"settlementCount"`
	TotalGross      string                   `json:"totalGrossAmount"`
	TotalFees       string                   `json:"totalFees"`
	TotalNet        string                   `json:"totalNetAmount"`
	Settlements     []SettlementLineResponse `json:"settlements"`
	Skipped         []SkippedResponse        `json:"skipped"`
	CSVExport       string                   `json:"csvExport"`
}

// WriteJSON sends payload with the given status.
func WriteJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// WriteError sends an ErrorResponse.
func WriteError(w http.ResponseWriter, logger *slog.Logger, code int, kind, message string) {
	WriteJSON(w, logger, code, ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}})
}
