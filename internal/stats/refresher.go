package stats

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// Refresher периодически пересчитывает сводку в фоне, чтобы запросы дашборда
// попадали в свежий кэш. С Redis за интервал пересчитывает только один инстанс.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	rdb      *redis.Client // nil - без распределенной блокировки
	logger   *zap.Logger
}

func NewRefresher(cache *Cache, interval time.Duration, rdb *redis.Client, logger *zap.Logger) *Refresher {
	return &Refresher{
		cache:    cache,
		interval: interval,
		rdb:      rdb,
		logger:   logger.Named("stats-refresher"),
	}
}

// Run блокируется до отмены ctx.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("summary refresher started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("summary refresher stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick возвращает true, если пересчет выполнялся этим инстансом.
func (r *Refresher) tick(ctx context.Context) bool {
	if r.rdb != nil {
		// SetNX: лок живет чуть меньше интервала, чтобы следующий тик мог его взять
		ok, err := r.rdb.SetNX(ctx, infra.RedisKeyLockSummaryRefresh, "processing", r.interval*9/10).Result()
		if err != nil {
			r.logger.Warn("refresh lock unavailable, refreshing locally", zap.Error(err))
		} else if !ok {
			return false // другой инстанс уже пересчитывает
		}
	}

	tCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	agg, err := r.cache.Recompute(tCtx)
	if err != nil {
		r.logger.Warn("background recompute skipped", zap.Error(err))
		return true
	}
	r.logger.Debug("summary refreshed",
		zap.Int64("total", agg.Total), zap.Int64("suspicious", agg.Suspicious), zap.Int64("high_risk", agg.HighRisk))
	return true
}
