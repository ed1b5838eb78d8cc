package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// DefaultMaxStderr - сколько байт stderr оракула мы держим в памяти.
const DefaultMaxStderr = 64 * 1024

// Invoker - любой способ получить скоринг одной записи (сам процесс или обертка над ним).
type Invoker interface {
	Invoke(ctx context.Context, record domain.FeatureRecord, includeDebug bool) (*domain.OracleResult, error)
}

type Config struct {
	Command   string
	Args      []string
	Dir       string
	Env       []string
	Timeout   time.Duration // 0 - ждем процесс сколько угодно
	MaxStderr int
}

func ConfigFrom(c infra.OracleConfig) Config {
	return Config{
		Command:   c.Command,
		Args:      c.Args,
		Dir:       c.Dir,
		Env:       c.Env,
		Timeout:   c.Timeout,
		MaxStderr: c.MaxStderr,
	}
}

// Client запускает оракул отдельным процессом на каждый запрос.
// Один запрос = один процесс: запись уходит в stdin одним JSON, ответ - последняя
// разбираемая строка stdout.
type Client struct {
	cfg     Config
	metrics *infra.Metrics
	logger  *zap.Logger
}

func NewClient(cfg Config, metrics *infra.Metrics, logger *zap.Logger) *Client {
	if cfg.MaxStderr <= 0 {
		cfg.MaxStderr = DefaultMaxStderr
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Client{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("oracle"),
	}
}

func (c *Client) Invoke(ctx context.Context, record domain.FeatureRecord, includeDebug bool) (*domain.OracleResult, error) {
	start := time.Now()
	res, err := c.run(ctx, record, includeDebug)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	c.metrics.OracleInvocations.WithLabelValues(outcome).Inc()
	c.metrics.OracleDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res, err
}

func (c *Client) run(ctx context.Context, record domain.FeatureRecord, includeDebug bool) (*domain.OracleResult, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Message: "failed to encode feature record", Err: err}
	}

	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	// Если процесс убит, а его потомки держат пайпы, не ждем их вечно
	cmd.WaitDelay = 2 * time.Second

	// exec сам гоняет пайпы в отдельных горутинах параллельно с процессом,
	// поэтому болтливый оракул не упрется в заполненный буфер пайпа
	var stdout bytes.Buffer
	stderr := NewBoundedBuffer(c.cfg.MaxStderr)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(stderr, &stderrSink{logger: c.logger})

	if err := cmd.Start(); err != nil {
		c.logger.Error("failed to start oracle", zap.String("command", c.cfg.Command), zap.Error(err))
		return nil, &Error{Kind: KindSpawn, Message: "failed to start oracle process", Err: err}
	}

	waitErr := cmd.Wait()

	if stderr.Truncated() {
		c.metrics.OracleStderrTruncated.Inc()
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if abortKind(ctxErr) == KindCanceled {
			c.logger.Info("oracle call cancelled by caller", zap.Error(ctxErr))
			return nil, &Error{Kind: KindCanceled, Message: "oracle call cancelled by caller", Stderr: stderr.String(), Err: ctxErr}
		}
		c.logger.Warn("oracle process aborted", zap.Duration("timeout", c.cfg.Timeout), zap.Error(ctxErr))
		return nil, &Error{Kind: KindTimeout, Message: "oracle process did not finish in time", Stderr: stderr.String(), Err: ctxErr}
	}

	if waitErr != nil {
		// Ненулевой код выхода сам по себе не ошибка: решает последняя строка stdout
		c.logger.Debug("oracle exited with error", zap.Error(waitErr))
	}

	res, modelErr, ok := ParseOutput(stdout.Bytes())
	if !ok {
		return nil, &Error{Kind: KindNoResult, Message: "no parseable result in oracle output", Stderr: stderr.String(), Err: waitErr}
	}
	if modelErr != "" {
		return nil, &Error{Kind: KindModel, Message: modelErr, Stderr: stderr.String()}
	}

	if includeDebug {
		res.Debug = stderr.String()
	}
	return res, nil
}

// ParseOutput ищет с конца первую строку, которая разбирается как JSON-объект.
// Возвращает результат, текст ошибки модели (если есть) и признак успеха.
func ParseOutput(stdout []byte) (*domain.OracleResult, string, bool) {
	lines := strings.Split(string(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
			continue
		}
		res, modelErr := decodeResult(fields)
		return res, modelErr, true
	}
	return nil, "", false
}

// decodeResult разбирает поля мягко: битое поле получает нулевое значение, а не ошибку.
func decodeResult(fields map[string]json.RawMessage) (*domain.OracleResult, string) {
	res := &domain.OracleResult{KeyFactors: []string{}}

	if raw, ok := fields["prediction"]; ok {
		_ = json.Unmarshal(raw, &res.Prediction)
	}

	if raw, ok := fields["confidence"]; ok {
		var f float64
		var s string
		if err := json.Unmarshal(raw, &f); err == nil {
			res.Confidence = f
		} else if err := json.Unmarshal(raw, &s); err == nil {
			res.Confidence, _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
	}

	if raw, ok := fields["key_factors"]; ok {
		var items []any
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				if s, ok := item.(string); ok {
					res.KeyFactors = append(res.KeyFactors, s)
					continue
				}
				res.KeyFactors = append(res.KeyFactors, fmt.Sprint(item))
			}
		}
	}

	return res, modelError(fields["error"])
}

// modelError - поле error считается ошибкой, если оно не пустое и не false/null.
func modelError(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if !t {
			return ""
		}
		return "model reported an error"
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
	}
	return string(raw)
}

// stderrSink отдает весь поток stderr в лог, без ограничения по размеру.
// Уровень info: иначе при дефолтных настройках логгера stderr пропадает целиком.
type stderrSink struct {
	logger *zap.Logger
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.logger.Info("oracle stderr", zap.ByteString("chunk", p))
	return len(p), nil
}
