package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// ErrStoreUnavailable - живое хранилище не настроено, считать сводку не из чего.
var ErrStoreUnavailable = errors.New("stats: store unavailable")

// DefaultFreshness - сколько живет копия сводки в памяти процесса.
const DefaultFreshness = 60 * time.Second

// Store - агрегирующие запросы к живому хранилищу и сохраненная строка сводки.
type Store interface {
	CountTotal(ctx context.Context) (int64, error)
	CountSuspicious(ctx context.Context) (int64, error)
	CountHighRisk(ctx context.Context) (int64, error)
	LoadSummary(ctx context.Context) (*domain.SummaryAggregate, error)
	SaveSummary(ctx context.Context, agg domain.SummaryAggregate) error
}

// Mirror - общий для всех инстансов уровень кэша (Redis).
type Mirror interface {
	Load(ctx context.Context) (*domain.SummaryAggregate, error)
	Save(ctx context.Context, agg domain.SummaryAggregate) error
	Publish(ctx context.Context) error
}

// Cache - сводная статистика с уровнями:
// L1 память процесса (окно свежести), L2 Redis (опционально), L3 строка в БД, затем живой пересчет.
// Пока копия в памяти свежая, она всегда важнее пересчета.
type Cache struct {
	store     Store  // nil - хранилище выключено
	mirror    Mirror // nil - Redis не используется
	freshness time.Duration
	now       func() time.Time
	metrics   *infra.Metrics
	logger    *zap.Logger

	mu    sync.RWMutex
	value *domain.SummaryAggregate
	at    time.Time
}

func NewCache(store Store, mirror Mirror, freshness time.Duration, metrics *infra.Metrics, logger *zap.Logger) *Cache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Cache{
		store:     store,
		mirror:    mirror,
		freshness: freshness,
		now:       time.Now,
		metrics:   metrics,
		logger:    logger.With(zap.String("mod", "stats")),
	}
}

// Current отдает сводку и никогда не падает: в худшем случае - нулевая заглушка.
func (c *Cache) Current(ctx context.Context) domain.SummaryAggregate {
	if agg, ok := c.fresh(); ok {
		c.metrics.SummaryTier.WithLabelValues(domain.SourceMemory).Inc()
		return agg
	}

	if c.mirror != nil {
		agg, err := c.mirror.Load(ctx)
		if err != nil {
			c.logger.Warn("summary mirror read failed", zap.Error(err))
		}
		if err == nil && agg != nil {
			c.metrics.SummaryTier.WithLabelValues(domain.SourceMirror).Inc()
			agg.Source = domain.SourceMirror
			return c.adopt(*agg)
		}
	}

	if c.store != nil {
		agg, err := c.store.LoadSummary(ctx)
		if err != nil {
			c.logger.Warn("persisted summary read failed, falling back to live", zap.Error(err))
		}
		if err == nil && agg != nil {
			c.metrics.SummaryTier.WithLabelValues(domain.SourceStore).Inc()
			agg.Source = domain.SourceStore
			adopted := c.adopt(*agg)
			c.saveMirror(ctx, adopted)
			return adopted
		}
	}

	agg, err := c.Recompute(ctx)
	if err != nil {
		// Хранилище выключено: отдаем то, что есть, без ошибки
		last, ok := c.last()
		if !ok {
			last = domain.FallbackSummary()
		}
		c.metrics.SummaryTier.WithLabelValues(last.Source).Inc()
		return last
	}
	if agg.IsFallback() {
		c.metrics.SummaryTier.WithLabelValues(domain.SourceFallback).Inc()
		return agg
	}

	c.metrics.SummaryTier.WithLabelValues(domain.SourceLive).Inc()
	if cached, ok := c.last(); ok {
		return cached
	}
	return agg
}

// Recompute считает сводку по живому хранилищу в обход кэша.
// Ошибкой заканчивается только выключенное хранилище; сбой запросов деградирует
// в последнее известное значение или нулевую заглушку.
func (c *Cache) Recompute(ctx context.Context) (domain.SummaryAggregate, error) {
	if c.store == nil {
		return domain.SummaryAggregate{}, ErrStoreUnavailable
	}

	total, err := c.store.CountTotal(ctx)
	if err != nil {
		c.logger.Error("summary recompute failed", zap.Error(err))
		if last, ok := c.last(); ok {
			return last, nil
		}
		return domain.FallbackSummary(), nil
	}

	suspicious, err := c.store.CountSuspicious(ctx)
	if err != nil {
		c.logger.Warn("suspicious count unavailable", zap.Error(err))
		suspicious = 0
	}
	highRisk, err := c.store.CountHighRisk(ctx)
	if err != nil {
		c.logger.Warn("high-risk count unavailable", zap.Error(err))
		highRisk = 0
	}

	now := c.now().UTC()
	agg := domain.SummaryAggregate{
		Total:       total,
		Suspicious:  suspicious,
		HighRisk:    highRisk,
		LastUpdated: &now,
		Source:      domain.SourceLive,
	}
	cached := c.adopt(agg)

	// Сохранение best-effort: сбой записи не ломает ответ
	if err := c.store.SaveSummary(ctx, agg); err != nil {
		c.logger.Warn("failed to persist summary", zap.Error(err))
	}
	c.saveMirror(ctx, cached)
	if c.mirror != nil {
		if err := c.mirror.Publish(ctx); err != nil {
			c.logger.Warn("failed to publish summary update", zap.Error(err))
		}
	}

	return agg, nil
}

// Invalidate сбрасывает копию в памяти (другой инстанс пересчитал сводку).
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.at = time.Time{}
}

func (c *Cache) fresh() (domain.SummaryAggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || c.now().Sub(c.at) >= c.freshness {
		return domain.SummaryAggregate{}, false
	}
	return *c.value, true
}

func (c *Cache) last() (domain.SummaryAggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return domain.SummaryAggregate{}, false
	}
	return *c.value, true
}

// adopt кладет значение в L1. Копия в памяти помечена cached=true и отдается
// без изменений, пока свежая. Последний писатель побеждает.
func (c *Cache) adopt(agg domain.SummaryAggregate) domain.SummaryAggregate {
	agg.Cached = true
	if agg.LastUpdated != nil {
		t := *agg.LastUpdated
		agg.LastUpdated = &t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = &agg
	c.at = c.now()
	return agg
}

func (c *Cache) saveMirror(ctx context.Context, agg domain.SummaryAggregate) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Save(ctx, agg); err != nil {
		c.logger.Warn("failed to write summary mirror", zap.Error(err))
	}
}
