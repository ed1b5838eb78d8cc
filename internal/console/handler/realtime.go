package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

type LatestReader interface {
	LatestWithSource(ctx context.Context, limit int) ([]domain.TransactionRecord, string)
}

type RealtimeHandler struct {
	reader LatestReader
}

func NewRealtimeHandler(reader LatestReader) *RealtimeHandler {
	return &RealtimeHandler{reader: reader}
}

// Latest - GET /api/realtime/latest?limit=N. Всегда 200: при сбоях - пустой список.
func (h *RealtimeHandler) Latest(w http.ResponseWriter, r *http.Request) {
	records, source := h.reader.LatestWithSource(r.Context(), intParam(r, "limit", 0))
	w.Header().Set("X-Data-Source", source)
	writeJSON(w, http.StatusOK, records)
}
