package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/aml-helpdesk/internal/analysis"
	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/oracle"
	"github.com/xela07ax/aml-helpdesk/internal/repository/sqlstore"
	"github.com/xela07ax/aml-helpdesk/internal/stats"
)

type fakeAnalyzer struct {
	res     *domain.OracleResult
	err     error
	lastReq analysis.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request) (*domain.OracleResult, error) {
	f.lastReq = req
	return f.res, f.err
}

func (f *fakeAnalyzer) Normalize(fields map[string]any) domain.FeatureRecord {
	return domain.FeatureRecord{"account": fields["fromAccount"]}
}

func post(h http.HandlerFunc, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestPredict_DebugSwitches(t *testing.T) {
	svc := &fakeAnalyzer{res: &domain.OracleResult{Prediction: "0", KeyFactors: []string{}}}
	h := NewPredictHandler(svc, 0, zaptest.NewLogger(t))

	tests := []struct {
		name    string
		target  string
		headers map[string]string
		handler http.HandlerFunc
		want    bool
	}{
		{"plain", "/api/manual/predict", nil, h.Predict, false},
		{"query", "/api/manual/predict?debug=true", nil, h.Predict, true},
		{"query false", "/api/manual/predict?debug=false", nil, h.Predict, false},
		{"header", "/api/manual/predict", map[string]string{"X-Debug": "yes"}, h.Predict, true},
		{"header one", "/api/manual/predict", map[string]string{"X-Debug": "1"}, h.Predict, true},
		{"debug route", "/api/manual/predict/debug", nil, h.PredictDebug, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(tt.handler, tt.target, `{"amount":"10"}`, tt.headers)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, svc.lastReq.Debug)
			assert.Equal(t, "10", svc.lastReq.Fields["amount"])
		})
	}
}

func TestPredict_ResponseShape(t *testing.T) {
	svc := &fakeAnalyzer{res: &domain.OracleResult{Prediction: "1", Confidence: 0.91, KeyFactors: []string{"amount"}}}
	rec := post(NewPredictHandler(svc, 0, zaptest.NewLogger(t)).Predict, "/api/manual/predict", `{}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"prediction":"1","confidence":0.91,"key_factors":["amount"]}`, rec.Body.String())
}

func TestPredict_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		debug      bool
		wantStatus int
		wantKind   string
		wantDebug  bool
	}{
		{"spawn", &oracle.Error{Kind: oracle.KindSpawn, Message: "failed to start oracle"}, false, http.StatusBadGateway, "spawn_failed", false},
		{"timeout", &oracle.Error{Kind: oracle.KindTimeout, Message: "oracle timed out"}, false, http.StatusBadGateway, "timeout", false},
		{"model", &oracle.Error{Kind: oracle.KindModel, Message: "bad features"}, false, http.StatusInternalServerError, "model_error", false},
		{"no result hides stderr", &oracle.Error{Kind: oracle.KindNoResult, Message: "no result", Stderr: "Traceback"}, false, http.StatusInternalServerError, "no_result", false},
		{"no result with debug", &oracle.Error{Kind: oracle.KindNoResult, Message: "no result", Stderr: "Traceback"}, true, http.StatusInternalServerError, "no_result", true},
		{"untyped", errors.New("boom"), false, http.StatusInternalServerError, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPredictHandler(&fakeAnalyzer{err: tt.err}, 0, zaptest.NewLogger(t))
			target := "/api/manual/predict"
			if tt.debug {
				target += "?debug=1"
			}
			rec := post(h.Predict, target, `{}`, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
			}
			_, hasDebug := body["debug"]
			assert.Equal(t, tt.wantDebug, hasDebug)
		})
	}
}

func TestPredict_BadBody(t *testing.T) {
	h := NewPredictHandler(&fakeAnalyzer{}, 16, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusBadRequest, post(h.Predict, "/", `{not json`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, post(h.Predict, "/", `{"a":"`+strings.Repeat("x", 64)+`"}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, post(h.Echo, "/", `[1,2]`, nil).Code)
}

func TestEcho(t *testing.T) {
	h := NewPredictHandler(&fakeAnalyzer{}, 0, zaptest.NewLogger(t))
	rec := post(h.Echo, "/api/manual/echo", `{"fromAccount":"A-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":{"fromAccount":"A-1"},"normalized":{"account":"A-1"}}`, rec.Body.String())
}

type fakeReader struct {
	gotLimit int
}

func (f *fakeReader) LatestWithSource(_ context.Context, limit int) ([]domain.TransactionRecord, string) {
	f.gotLimit = limit
	return []domain.TransactionRecord{}, "empty"
}

func TestRealtime_AlwaysOK(t *testing.T) {
	reader := &fakeReader{}
	h := NewRealtimeHandler(reader)

	for target, want := range map[string]int{"/?limit=7": 7, "/?limit=abc": 0, "/": 0} {
		rec := httptest.NewRecorder()
		h.Latest(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "empty", rec.Header().Get("X-Data-Source"))
		assert.JSONEq(t, `[]`, rec.Body.String())
		assert.Equal(t, want, reader.gotLimit, target)
	}
}

type fakeSummary struct {
	current domain.SummaryAggregate
	raw     domain.SummaryAggregate
	rawErr  error
}

func (f *fakeSummary) Current(context.Context) domain.SummaryAggregate { return f.current }
func (f *fakeSummary) Recompute(context.Context) (domain.SummaryAggregate, error) {
	return f.raw, f.rawErr
}

func TestStats(t *testing.T) {
	summary := &fakeSummary{
		current: domain.SummaryAggregate{Total: 10, Suspicious: 2, HighRisk: 1, Cached: true, Source: domain.SourceMemory},
		raw:     domain.SummaryAggregate{Total: 11, Source: domain.SourceLive},
	}
	h := NewStatsHandler(summary, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":10,"suspicious":2,"highRisk":1,"cached":true,"source":"memory"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Raw(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(11), decodeBody(t, rec)["total"])

	summary.rawErr = stats.ErrStoreUnavailable
	rec = httptest.NewRecorder()
	h.Raw(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	summary.rawErr = errors.New("db exploded")
	rec = httptest.NewRecorder()
	h.Raw(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeInspector struct {
	healthErr error
	sampled   int
	ensured   bool
}

func (f *fakeInspector) Health(context.Context) error { return f.healthErr }
func (f *fakeInspector) Info(context.Context) (*sqlstore.Info, error) {
	return &sqlstore.Info{Driver: "sqlite", Table: "transaction", Total: 3}, nil
}
func (f *fakeInspector) Sample(_ context.Context, limit int) ([]map[string]any, error) {
	f.sampled = limit
	return []map[string]any{}, nil
}
func (f *fakeInspector) EnsureSummaryTable(context.Context) error {
	f.ensured = true
	return nil
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDebug_DisabledStore(t *testing.T) {
	h := NewDebugHandler(nil, &fakeSummary{}, zaptest.NewLogger(t))
	for _, fn := range []http.HandlerFunc{h.DBHealth, h.DBInfo, h.DBSample, h.SetupStatsSummary} {
		rec := get(fn, "/")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["ok"])
	}
}

func TestDebug_WithStore(t *testing.T) {
	store := &fakeInspector{}
	summary := &fakeSummary{raw: domain.SummaryAggregate{Total: 3, Source: domain.SourceLive}}
	h := NewDebugHandler(store, summary, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusOK, get(h.DBHealth, "/").Code)
	store.healthErr = errors.New("conn refused")
	assert.Equal(t, http.StatusServiceUnavailable, get(h.DBHealth, "/").Code)

	rec := get(h.DBInfo, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sqlite", decodeBody(t, rec)["driver"])

	get(h.DBSample, "/?limit=500")
	assert.Equal(t, 5, store.sampled)
	get(h.DBSample, "/?limit=12")
	assert.Equal(t, 12, store.sampled)

	rec = httptest.NewRecorder()
	h.SetupStatsSummary(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.ensured)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestHealth(t *testing.T) {
	rec := get(Health, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
