// internal/api/handler/driver.go
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"ridewallet/internal/api/types"
	"ridewallet/internal/domain"
	"ridewallet/internal/service"

	"github.com/go-chi/chi/v5"
)

// DriverHandler serves driver-only endpoints.
type DriverHandler struct {
	responder
	sessions service.DriverSessionService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(sessions service.DriverSessionService, logger *slog.Logger) *DriverHandler {
	return &DriverHandler{responder: responder{logger: logger}, sessions: sessions}
}

// IssueSession creates a payment session for the calling driver.
// POST /v1/driver/sessions
func (h *DriverHandler) IssueSession(w http.ResponseWriter, r *http.Request) {
	driverID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	session, err := h.sessions.Issue(r.Context(), driverID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, types.SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		QRPath:    "/v1/driver/sessions/" + session.Token + "/qr",
	})
}

// SessionQR renders the session token as a PNG QR code.
// GET /v1/driver/sessions/{token}/qr
func (h *DriverHandler) SessionQR(w http.ResponseWriter, r *http.Request) {
	driverID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	png, err := h.sessions.QRCode(r.Context(), driverID, chi.URLParam(r, "token"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// BankDetailsRequest represents the driver's payout account.
type BankDetailsRequest struct {
	BankName          string `json:"bankName"`
	AccountNumber     string `json:"accountNumber"`
	AccountHolderName string `json:"accountHolderName"`
	BranchCode        string `json:"branchCode"`
	Country           string `json:"country"`
	Currency          string `json:"currency"`
}

// PutBankDetails stores the driver's payout account, encrypted.
// PUT /v1/driver/bank-details
func (h *DriverHandler) PutBankDetails(w http.ResponseWriter, r *http.Request) {
	driverID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	var req BankDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	account := domain.BankAccount{
		BankName:          req.BankName,
		AccountNumber:     req.AccountNumber,
		AccountHolderName: req.AccountHolderName,
		BranchCode:        req.BranchCode,
		Country:           req.Country,
		Currency:          req.Currency,
	}
	details, err := h.sessions.RegisterBankAccount(r.Context(), driverID, account)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"driverId":   details.DriverID,
		"account":    account.MaskedAccountNumber(),
		"country":    details.Country,
		"currency":   details.Currency,
		"isVerified": details.IsVerified,
		"updatedAt":  details.UpdatedAt,
	})
}
