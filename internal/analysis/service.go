package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/features"
	"github.com/xela07ax/aml-helpdesk/internal/oracle"
)

// Request - форма аналитика как есть плюс явный флаг отладки.
type Request struct {
	Fields map[string]any
	Debug  bool
}

// Sink принимает результат для фоновой записи. Не должен блокировать.
type Sink interface {
	Submit(record domain.FeatureRecord, result domain.OracleResult) bool
}

// Service - конвейер одной транзакции: нормализация -> оракул -> (опционально) запись.
type Service struct {
	normalizer *features.Normalizer
	oracle     oracle.Invoker
	sink       Sink // nil - сохранение выключено
	debugAll   bool
	logger     *zap.Logger
}

func NewService(normalizer *features.Normalizer, invoker oracle.Invoker, sink Sink, debugAll bool, logger *zap.Logger) *Service {
	if normalizer == nil {
		normalizer = features.NewNormalizer()
	}
	return &Service{
		normalizer: normalizer,
		oracle:     invoker,
		sink:       sink,
		debugAll:   debugAll,
		logger:     logger.Named("analysis"),
	}
}

// Analyze возвращает ответ оракула либо *oracle.Error. Запись в БД ответ не задерживает.
func (s *Service) Analyze(ctx context.Context, req Request) (*domain.OracleResult, error) {
	record := s.normalizer.Normalize(req.Fields)
	includeDebug := req.Debug || s.debugAll || truthy(req.Fields["debug"])

	res, err := s.oracle.Invoke(ctx, record, includeDebug)
	if err != nil {
		s.logger.Warn("inference failed", zap.String("kind", string(oracle.KindOf(err))), zap.Error(err))
		return nil, err
	}
	if res.KeyFactors == nil {
		res.KeyFactors = []string{}
	}

	if s.sink != nil {
		out := *res
		out.Debug = ""
		s.sink.Submit(record, out)
	}

	s.logger.Debug("inference completed",
		zap.String("prediction", string(res.Prediction)), zap.Float64("confidence", res.Confidence))
	return res, nil
}

// Normalize - нормализация без вызова оракула (эхо-ручка для отладки формы).
func (s *Service) Normalize(fields map[string]any) domain.FeatureRecord {
	return s.normalizer.Normalize(fields)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}
