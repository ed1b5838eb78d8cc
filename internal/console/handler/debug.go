package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/repository/sqlstore"
)

// StoreInspector - отладочные операции над живым хранилищем.
type StoreInspector interface {
	Health(ctx context.Context) error
	Info(ctx context.Context) (*sqlstore.Info, error)
	Sample(ctx context.Context, limit int) ([]map[string]any, error)
	EnsureSummaryTable(ctx context.Context) error
}

type DebugHandler struct {
	store   StoreInspector // nil - хранилище выключено
	summary SummaryProvider
	logger  *zap.Logger
}

func NewDebugHandler(store StoreInspector, summary SummaryProvider, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{store: store, summary: summary, logger: logger.Named("debug-handler")}
}

func (h *DebugHandler) disabled(w http.ResponseWriter) bool {
	if h.store != nil {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "DB mode disabled"})
	return true
}

// DBHealth - GET /api/debug/db-health
func (h *DebugHandler) DBHealth(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	if err := h.store.Health(r.Context()); err != nil {
		h.logger.Warn("db health failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DBInfo - GET /api/debug/db-info
func (h *DebugHandler) DBInfo(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	info, err := h.store.Info(r.Context())
	if err != nil {
		h.logger.Warn("db info failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DBSample - GET /api/debug/db-sample?limit=N
func (h *DebugHandler) DBSample(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	limit := intParam(r, "limit", 5)
	if limit <= 0 || limit > 100 {
		limit = 5
	}
	rows, err := h.store.Sample(r.Context(), limit)
	if err != nil {
		h.logger.Warn("db sample failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// SetupStatsSummary - POST /api/debug/setup-stats-summary: таблица сводки + первый пересчет.
func (h *DebugHandler) SetupStatsSummary(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	if err := h.store.EnsureSummaryTable(r.Context()); err != nil {
		h.logger.Error("summary table setup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	agg, err := h.summary.Recompute(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": agg})
}
