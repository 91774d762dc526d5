// internal/api/handler/settlement.go
package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ridewallet/internal/api/types"
	"ridewallet/internal/domain"
	"ridewallet/internal/export"
	"ridewallet/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SettlementHandler serves the admin settlement endpoints.
type SettlementHandler struct {
	responder
	settlements service.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlements service.SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{responder: responder{logger: logger}, settlements: settlements}
}

// RunBatchRequest represents a settlement run.
type RunBatchRequest struct {
	Period    string              `json:"period"`
	DriverID  *int64              `json:"driverId"`
	DryRun    bool                `json:"dryRun"`
	MinPayout decimal.NullDecimal `json:"minPayout"`
	FeeRate   decimal.NullDecimal `json:"feeRate"`
	Format    string              `json:"format"`
}

// RunBatch settles drivers and returns the batch summary, or the payout
// workbook when format=xlsx.
// POST /v1/admin/settlements
func (h *SettlementHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	format := strings.ToLower(req.Format)
	if q := r.URL.Query().Get("format"); q != "" {
		format = strings.ToLower(q)
	}

	res, err := h.settlements.RunBatch(r.Context(), service.BatchRequest{
		Period:    req.Period,
		DriverID:  req.DriverID,
		DryRun:    req.DryRun,
		MinPayout: req.MinPayout,
		FeeRate:   req.FeeRate,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	if format == "xlsx" {
		h.writeWorkbook(w, r, res)
		return
	}
	h.respondWithJSON(w, http.StatusOK, batchResponse(res))
}

// writeWorkbook buffers the file so a render error can still become a JSON 500.
func (h *SettlementHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, res *service.BatchResult) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, res.PayoutRows()); err != nil {
		h.respondWithError(w, r, fmt.Errorf("render settlement workbook: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="settlement-%s.xlsx"`, res.BatchID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func batchResponse(res *service.BatchResult) types.SettlementBatchResponse {
	lines := make([]types.SettlementLineResponse, 0, len(res.Lines))
	for _, l := range res.Lines {
		lines = append(lines, types.SettlementLineResponse{
			SettlementID:     l.Settlement.ID,
			DriverID:         l.Settlement.DriverID,
			GrossAmount:      money(l.Settlement.GrossAmount),
			Fees:             money(l.Settlement.Fees),
			NetAmount:        money(l.Settlement.NetAmount),
			TransactionCount: l.Settlement.TransactionCount,
			Account:          l.Account.MaskedAccountNumber(),
		})
	}
	skipped := make([]types.SkippedResponse, 0, len(res.Skipped))
	for _, s := range res.Skipped {
		skipped = append(skipped, types.SkippedResponse{DriverID: s.DriverID, Reason: s.Reason})
	}
	return types.SettlementBatchResponse{
		BatchID:         res.BatchID,
		Period:          res.Period.Name,
		PeriodStart:     res.Period.Start,
		PeriodEnd:       res.Period.End,
		DryRun:          res.DryRun,
		SettlementCount: len(lines),
		TotalGross:      money(res.TotalGross),
		TotalFees:       money(res.TotalFees),
		TotalNet:        money(res.TotalNet),
		Settlements:     lines,
		Skipped:         skipped,
		CSVExport:       res.CSV,
	}
}

// GetBatch lists the settlements recorded under a batch id.
// GET /v1/admin/settlements/{batchID}
func (h *SettlementHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.settlements.ListBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	total := decimal.Zero
	for _, s := range settlements {
		total = total.Add(s.NetAmount)
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"batchId":        chi.URLParam(r, "batchID"),
		"settlements":    settlements,
		"totalNetAmount": domain.FormatMoney(total),
	})
}
