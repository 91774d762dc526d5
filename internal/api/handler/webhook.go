// internal/api/handler/webhook.go
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"ridewallet/internal/gateway"
	"ridewallet/internal/service"
	"ridewallet/internal/util"
)

// WebhookHandler receives gateway status updates. It is unauthenticated;
// the payload hash is the only proof of origin.
type WebhookHandler struct {
	responder
	reconciler service.Reconciler
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler service.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{responder: responder{logger: logger}, reconciler: reconciler}
}

// Receive handles a form-encoded status update.
// POST /v1/webhooks/gateway
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithError(w, r, util.InvalidInput("unreadable body"))
		return
	}
	payload, err := gateway.ParseWebhook(body)
	if err != nil {
		h.respondWithError(w, r, util.InvalidInput("%v", err))
		return
	}

	res, err := h.reconciler.HandleWebhook(r.Context(), payload)
	if err != nil {
		if errors.Is(err, util.ErrInvalidSignature) {
			h.logger.Warn("Rejected webhook with bad signature", "reference", payload.Reference, "remote", r.RemoteAddr)
		}
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}
