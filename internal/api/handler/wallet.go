// internal/api/handler/wallet.go
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"ridewallet/internal/api/types"
	"ridewallet/internal/domain"
	"ridewallet/internal/service"
)

// WalletHandler handles HTTP requests related to wallet operations.
type WalletHandler struct {
	responder
	service service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc service.WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

func walletResponse(w *domain.Wallet) types.WalletResponse {
	return types.WalletResponse{
		WalletID:        w.ID,
		UserID:          w.UserID,
		Currency:        w.Currency,
		Balance:         money(w.Balance),
		PendingBalance:  money(w.PendingBalance),
		DailyTopupLimit: optionalMoney(w.DailyTopupLimit),
		DailySpendLimit: optionalMoney(w.DailySpendLimit),
	}
}

// OpenWalletRequest represents the request body for opening a wallet.
type OpenWalletRequest struct {
	Currency string `json:"currency"`
}

// OpenWallet creates the caller's wallet.
// POST /v1/wallet
func (h *WalletHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	var req OpenWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	wallet, created, err := h.service.OpenWallet(r.Context(), userID, req.Currency)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	h.respondWithJSON(w, code, walletResponse(wallet))
}

// GetWallet handles the get wallet balance request.
// GET /v1/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	wallet, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, walletResponse(wallet))
}

// GetTransactionHistory handles the get transaction history request.
// GET /v1/wallet/transactions
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	// Parse query parameters for pagination
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0 // Default offset
	}

	transactions, totalCount, err := h.service.GetTransactionHistory(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Transaction]{
		Data:       transactions,
		Limit:      limit,
		Offset:     offset,
		TotalCount: totalCount,
	})
}
