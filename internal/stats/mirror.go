package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// RedisMirror - L2 уровень сводки, общий для всех инстансов хелпдеска.
// После пересчета инстанс публикует свой id, остальные сбрасывают L1.
type RedisMirror struct {
	rdb        *redis.Client
	ttl        time.Duration
	instanceID string
	logger     *zap.Logger
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisMirror{
		rdb:        rdb,
		ttl:        ttl,
		instanceID: uuid.NewString(),
		logger:     logger.Named("stats-mirror"),
	}
}

// Load - (nil, nil), если ключа нет.
func (m *RedisMirror) Load(ctx context.Context) (*domain.SummaryAggregate, error) {
	raw, err := m.rdb.Get(ctx, infra.RedisKeySummary).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get summary: %w", err)
	}

	var agg domain.SummaryAggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, fmt.Errorf("redis: corrupted summary: %w", err)
	}
	return &agg, nil
}

func (m *RedisMirror) Save(ctx context.Context, agg domain.SummaryAggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	if err := m.rdb.Set(ctx, infra.RedisKeySummary, raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set summary: %w", err)
	}
	return nil
}

func (m *RedisMirror) Publish(ctx context.Context) error {
	return m.rdb.Publish(ctx, infra.RedisChanSummaryUpdated, m.instanceID).Err()
}

// Listen - живучая подписка на обновления сводки: переподписывается после обрыва
// и на каждое чужое обновление вызывает onUpdate. Работает до отмены ctx.
func (m *RedisMirror) Listen(ctx context.Context, onUpdate func()) {
	channel := infra.RedisChanSummaryUpdated
	for {
		pubsub := m.rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		// Пока были отключены, могли пропустить обновления
		onUpdate()

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				if msg.Payload == m.instanceID {
					continue // свое же обновление
				}
				onUpdate()
			}
		}

		_ = pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
