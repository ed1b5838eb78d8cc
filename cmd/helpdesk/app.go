package main

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/analysis"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
	"github.com/xela07ax/aml-helpdesk/internal/oracle"
	"github.com/xela07ax/aml-helpdesk/internal/realtime"
	"github.com/xela07ax/aml-helpdesk/internal/repository/sqlstore"
	"github.com/xela07ax/aml-helpdesk/internal/stats"
)

// app - собранный граф зависимостей. Общий для serve и разовых команд.
type app struct {
	cfg     *infra.Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *infra.Metrics

	store  *sqlstore.Store    // nil - режим без БД
	rdb    *redis.Client      // nil - без общего кэша
	mirror *stats.RedisMirror // nil - без общего кэша

	summary   *stats.Cache
	reader    *realtime.Reader
	persister *analysis.Persister // nil - предсказания не сохраняются
	service   *analysis.Service
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	// .env необязателен, переменные окружения процесса важнее
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	a := &app{cfg: cfg, logger: logger, reg: reg, metrics: infra.NewMetrics(reg)}

	// 1. Живое хранилище
	if cfg.Store.Enabled {
		store, err := sqlstore.Open(sqlstore.ConfigFrom(cfg.Store, cfg.Stats), logger)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := pingStore(ctx, store); err != nil {
			// Не падаем: лента уйдет в архив, сводка в заглушку, пока БД не вернется
			logger.Warn("live store unreachable at start-up", zap.String("driver", store.Driver()), zap.Error(err))
		}
		a.store = store
	}

	// 2. Общий кэш сводки (L2) и канал инвалидации
	if cfg.Redis.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, summary mirror degrades to local cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		a.mirror = stats.NewRedisMirror(a.rdb, cfg.Redis.SummaryTTL, logger)
	}

	// Интерфейсы собираем явно: typed nil в интерфейсе сломал бы проверки "выключено"
	var (
		statsStore stats.Store
		live       realtime.LiveSource
		mirror     stats.Mirror
		sink       analysis.Sink
	)
	if a.store != nil {
		statsStore = a.store
		live = a.store
	}
	if a.mirror != nil {
		mirror = a.mirror
	}

	a.summary = stats.NewCache(statsStore, mirror, cfg.Stats.Freshness, a.metrics, logger)
	a.reader = realtime.NewReader(live, realtime.ConfigFrom(cfg.Store, cfg.Archive), a.metrics, logger)

	// 3. Оракул: процесс + лимитер и предохранитель от шторма запусков
	client := oracle.NewClient(oracle.ConfigFrom(cfg.Oracle), a.metrics, logger)
	guard := oracle.NewGuard(client, oracle.GuardConfigFrom(cfg.Oracle), a.metrics, logger)

	if a.store != nil && cfg.Store.SavePredictions {
		a.persister = analysis.NewPersister(a.store, 0, cfg.Store.WriteTimeout, a.metrics, logger)
		a.persister.Start()
		sink = a.persister
	}

	a.service = analysis.NewService(nil, guard, sink, cfg.Oracle.Debug, logger)
	return a, nil
}

// pingStore дает БД несколько попыток подняться (docker-compose стартует параллельно).
func pingStore(ctx context.Context, store *sqlstore.Store) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	return r.Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return store.Ping(pingCtx)
	})
}

func (a *app) requireStore() error {
	if a.store == nil {
		return fmt.Errorf("%w (store.enabled=false)", sqlstore.ErrDisabled)
	}
	return nil
}

// close дожидается фоновых записей и освобождает ресурсы.
func (a *app) close() {
	if a.persister != nil {
		a.persister.Stop()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
