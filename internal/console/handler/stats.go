package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/stats"
)

type SummaryProvider interface {
	Current(ctx context.Context) domain.SummaryAggregate
	Recompute(ctx context.Context) (domain.SummaryAggregate, error)
}

type StatsHandler struct {
	summary SummaryProvider
	logger  *zap.Logger
}

func NewStatsHandler(summary SummaryProvider, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{summary: summary, logger: logger.Named("stats-handler")}
}

// Summary - GET /api/stats/summary, кэшированная сводка. Не падает никогда.
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.summary.Current(r.Context()))
}

// Raw - GET /api/stats/summary/raw, пересчет в обход кэша.
func (h *StatsHandler) Raw(w http.ResponseWriter, r *http.Request) {
	agg, err := h.summary.Recompute(r.Context())
	if errors.Is(err, stats.ErrStoreUnavailable) {
		writeError(w, http.StatusBadRequest, "DB mode disabled; stats require a database")
		return
	}
	if err != nil {
		h.logger.Error("raw summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to calculate stats")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}
