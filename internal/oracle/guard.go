package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

type GuardConfig struct {
	Rate            float64 // запусков процесса в секунду, 0 - без лимита
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func GuardConfigFrom(c infra.OracleConfig) GuardConfig {
	return GuardConfig{
		Rate:            c.Rate,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

// Guard защищает хост от шторма процессов: лимитер на запуск и предохранитель,
// который выбивает только на инфраструктурных отказах (spawn, timeout).
// Ошибки модели и пустой вывод - это ответ оракула, они breaker не трогают.
// Повторов нет: каждый вызов оракула выполняется не больше одного раза.
type Guard struct {
	next    Invoker
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGuard(next Invoker, cfg GuardConfig, metrics *infra.Metrics, logger *zap.Logger) *Guard {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	logger = logger.Named("oracle-guard")

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oracle",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout, // 0 - дефолт gobreaker (60s)
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Отмена вызывающим и ответы модели нейтральны: breaker считает только spawn и timeout
		IsSuccessful: func(err error) bool {
			return err == nil || !Unavailable(err)
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

	return &Guard{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (g *Guard) Invoke(ctx context.Context, record domain.FeatureRecord, includeDebug bool) (*domain.OracleResult, error) {
	// 1. Rate Limiter: ждем слот, пока жив контекст запроса
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: abortKind(ctx.Err()), Message: "oracle rate limit wait aborted", Err: err}
	}

	// 2. Circuit Breaker
	var res *domain.OracleResult
	_, err := g.cb.Execute(func() (interface{}, error) {
		var callErr error
		res, callErr = g.next.Invoke(ctx, record, includeDebug)
		return nil, callErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Kind: KindSpawn, Message: "oracle unavailable: circuit open", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// State - текущее состояние предохранителя (для health).
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}
