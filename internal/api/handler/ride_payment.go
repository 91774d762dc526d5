// internal/api/handler/ride_payment.go
package handler

import (
	"log/slog"
	"net/http"

	"ridewallet/internal/api/types"
	"ridewallet/internal/service"

	"github.com/shopspring/decimal"
)

// RidePaymentHandler handles rider-to-driver payments.
type RidePaymentHandler struct {
	responder
	payments service.RidePaymentService
}

// NewRidePaymentHandler creates a new RidePaymentHandler.
func NewRidePaymentHandler(payments service.RidePaymentService, logger *slog.Logger) *RidePaymentHandler {
	return &RidePaymentHandler{responder: responder{logger: logger}, payments: payments}
}

// RidePaymentRequest represents the request body for paying a ride.
type RidePaymentRequest struct {
	DriverSessionToken string          `json:"driverSessionToken"`
	Amount             decimal.Decimal `json:"amount"`
	TipAmount          decimal.Decimal `json:"tipAmount"`
	IdempotencyKey     string          `json:"idempotencyKey"`
}

// Pay handles the ride payment request.
// POST /v1/ride-payments
func (h *RidePaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	riderID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	var req RidePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	res, err := h.payments.Pay(r.Context(), service.RidePaymentRequest{
		RiderID:            riderID,
		DriverSessionToken: req.DriverSessionToken,
		Amount:             req.Amount,
		Tip:                req.TipAmount,
		IdempotencyKey:     idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	h.respondWithJSON(w, code, types.RidePaymentResponse{
		TransactionID:   res.Transaction.ID,
		Reference:       res.Transaction.Reference,
		Amount:          money(res.Transaction.Amount),
		Fee:             money(res.Transaction.Fee),
		PayerNewBalance: money(res.PayerNewBalance),
	})
}
