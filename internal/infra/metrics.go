package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Oracle: длительность и исход каждого запуска процесса скоринга
	OracleDuration    *prometheus.HistogramVec
	OracleInvocations *prometheus.CounterVec

	// Oracle: сколько раз stderr не поместился в буфер
	OracleStderrTruncated prometheus.Counter

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Realtime: из какого источника отдали ленту (live, archive, empty)
	ReaderSource *prometheus.CounterVec

	// Stats: с какого уровня кэша пришла сводка (memory, mirror, store, live, fallback)
	SummaryTier *prometheus.CounterVec

	// Persistence: судьба фоновой записи предсказаний (saved, skipped, failed, dropped)
	PersistResults  *prometheus.CounterVec
	PersistQueueLen prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OracleDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aml_oracle_duration_seconds",
			Help:    "Histogram of scoring process latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		OracleInvocations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aml_oracle_invocations_total",
			Help: "Total number of scoring process invocations by outcome.",
		}, []string{"outcome"}), // ok, spawn_failed, no_result, model_error, timeout

		OracleStderrTruncated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aml_oracle_stderr_truncated_total",
			Help: "Invocations whose stderr exceeded the retained buffer.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aml_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"breaker"}),

		ReaderSource: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aml_realtime_reads_total",
			Help: "Latest-transactions reads by the source that served them.",
		}, []string{"source"}),

		SummaryTier: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aml_summary_reads_total",
			Help: "Summary reads by the cache tier that served them.",
		}, []string{"tier"}),

		PersistResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aml_prediction_persist_total",
			Help: "Background prediction writes by result.",
		}, []string{"result"}),

		PersistQueueLen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aml_prediction_persist_queue",
			Help: "Current number of predictions waiting to be written.",
		}),
	}
}
