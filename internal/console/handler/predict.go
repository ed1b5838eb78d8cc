package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/analysis"
	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/oracle"
)

// Analyzer Описываем, что нам нужно от конвейера скоринга
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*domain.OracleResult, error)
	Normalize(fields map[string]any) domain.FeatureRecord
}

type PredictHandler struct {
	svc     Analyzer
	maxBody int64
	logger  *zap.Logger
}

func NewPredictHandler(svc Analyzer, maxBody int64, logger *zap.Logger) *PredictHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &PredictHandler{svc: svc, maxBody: maxBody, logger: logger.Named("predict-handler")}
}

// Predict - POST /api/manual/predict. Отладка: ?debug=true или заголовок X-Debug.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, wantsDebug(r))
}

// PredictDebug - POST /api/manual/predict/debug, всегда с stderr оракула.
func (h *PredictHandler) PredictDebug(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, true)
}

func (h *PredictHandler) predict(w http.ResponseWriter, r *http.Request, debug bool) {
	fields, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Analyze(r.Context(), analysis.Request{Fields: fields, Debug: debug})
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))

		body := map[string]string{"error": err.Error()}
		status := http.StatusInternalServerError

		var oErr *oracle.Error
		if errors.As(err, &oErr) {
			body["error"] = oErr.Message
			body["kind"] = string(oErr.Kind)
			if debug && oErr.Stderr != "" {
				body["debug"] = oErr.Stderr
			}
			if oracle.Unavailable(err) {
				status = http.StatusBadGateway
			}
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Echo - POST /api/manual/echo: что пришло и во что это нормализуется, без оракула.
func (h *PredictHandler) Echo(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received":   fields,
		"normalized": h.svc.Normalize(fields),
	})
}

func (h *PredictHandler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, false
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, true
}

func wantsDebug(r *http.Request) bool {
	return isTrue(r.URL.Query().Get("debug")) || isTrue(r.Header.Get("X-Debug"))
}
