package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

const (
	DefaultLimit = 20
	// MaxLimit ограничивает окно, которое держим в памяти на один запрос
	MaxLimit = 1000
)

// Источники ленты (для метрик и заголовка ответа).
const (
	SourceLive    = "live"
	SourceArchive = "archive"
	SourceEmpty   = "empty"
)

// LiveSource - живое хранилище транзакций.
type LiveSource interface {
	LatestRows(ctx context.Context, limit int) ([]map[string]any, error)
}

type Config struct {
	ArchivePath     string
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func ConfigFrom(store infra.StoreConfig, archive infra.ArchiveConfig) Config {
	return Config{
		ArchivePath:     archive.Path,
		BreakerFailures: store.BreakerFailures,
		BreakerTimeout:  store.BreakerTimeout,
	}
}

// Reader отдает последние транзакции: сначала из живого хранилища, при любой его
// проблеме - из архивного CSV. Наружу ошибка не выходит никогда.
type Reader struct {
	live        LiveSource // nil - хранилище выключено
	archivePath string
	cb          *gobreaker.CircuitBreaker
	metrics     *infra.Metrics
	logger      *zap.Logger
}

func NewReader(live LiveSource, cfg Config, metrics *infra.Metrics, logger *zap.Logger) *Reader {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	logger = logger.Named("realtime")

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	// После серии сбоев БД сразу идем в архив, не тратя время на таймауты
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "live-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Клиент закрыл соединение - это не сбой БД
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(state)
		},
	})

	return &Reader{
		live:        live,
		archivePath: cfg.ArchivePath,
		cb:          cb,
		metrics:     metrics,
		logger:      logger,
	}
}

// Latest - до limit последних транзакций, от новых к старым.
func (r *Reader) Latest(ctx context.Context, limit int) []domain.TransactionRecord {
	records, _ := r.LatestWithSource(ctx, limit)
	return records
}

// LatestWithSource дополнительно сообщает, какой источник ответил.
func (r *Reader) LatestWithSource(ctx context.Context, limit int) ([]domain.TransactionRecord, string) {
	limit = clampLimit(limit)

	if r.live != nil {
		rows, err := r.fromLive(ctx, limit)
		if err == nil {
			r.metrics.ReaderSource.WithLabelValues(SourceLive).Inc()
			return normalizeAll(rows), SourceLive
		}
		r.logger.Warn("live store read failed, falling back to archive", zap.Error(err))
	}

	rows, err := ReadArchive(r.archivePath, limit)
	if err != nil {
		r.logger.Error("archive read failed", zap.String("path", r.archivePath), zap.Error(err))
		r.metrics.ReaderSource.WithLabelValues(SourceEmpty).Inc()
		return []domain.TransactionRecord{}, SourceEmpty
	}

	r.metrics.ReaderSource.WithLabelValues(SourceArchive).Inc()
	return normalizeAll(rows), SourceArchive
}

func (r *Reader) fromLive(ctx context.Context, limit int) ([]map[string]any, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.live.LatestRows(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]map[string]any)
	return rows, nil
}

// State - состояние предохранителя живого хранилища.
func (r *Reader) State() gobreaker.State {
	return r.cb.State()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func normalizeAll(rows []map[string]any) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeRow(row))
	}
	return out
}
