// internal/api/handler/topup.go
package handler

import (
	"log/slog"
	"net/http"

	"ridewallet/internal/api/types"
	"ridewallet/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TopupHandler handles gateway top-ups and their status checks.
type TopupHandler struct {
	responder
	topups     service.TopupService
	reconciler service.Reconciler
}

// NewTopupHandler creates a new TopupHandler.
func NewTopupHandler(topups service.TopupService, reconciler service.Reconciler, logger *slog.Logger) *TopupHandler {
	return &TopupHandler{
		responder:  responder{logger: logger},
		topups:     topups,
		reconciler: reconciler,
	}
}

// TopupRequest represents the request body for a top-up.
type TopupRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Phone          string          `json:"phone"`
	Method         string          `json:"method"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// Initiate handles the top-up request.
// POST /v1/topups
func (h *TopupHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	var req TopupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	res, err := h.topups.InitiateTopup(r.Context(), service.TopupRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Phone:          req.Phone,
		Method:         req.Method,
		Currency:       req.Currency,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	h.respondWithJSON(w, code, types.TopupResponse{
		TransactionID: res.Transaction.ID,
		Reference:     res.Transaction.Reference,
		Status:        string(res.Transaction.Status),
		Amount:        money(res.Transaction.Amount),
		BrowserURL:    res.RedirectURL,
		PollURL:       res.PollURL,
		Instructions:  res.Instructions,
	})
}

// CheckPending polls the gateway for every pending top-up of the caller.
// POST /v1/topups/check
func (h *TopupHandler) CheckPending(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	results, err := h.reconciler.CheckPending(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{"results": results})
}

// CheckOne reconciles a single top-up.
// GET /v1/topups/{transactionID}
func (h *TopupHandler) CheckOne(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	txID, err := parseID(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	res, err := h.reconciler.CheckOne(r.Context(), userID, txID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}
