package analysis

/*
Фоновая запись результатов скоринга обратно в таблицу транзакций.

- Ответ аналитику никогда не ждет записи: Submit не блокируется.
- Очередь ограничена; при переполнении задание сбрасывается (Load Shedding) с записью в лог.
- Ошибка записи только логируется, повторов нет.
- Stop закрывает вход и дожидается, пока воркер допишет остаток очереди (Drain Pattern).
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// PredictionWriter - куда физически пишем предсказание (sqlstore.Store).
type PredictionWriter interface {
	InsertPrediction(ctx context.Context, record domain.FeatureRecord, result *domain.OracleResult) (bool, error)
}

type persistJob struct {
	id     string
	record domain.FeatureRecord
	result domain.OracleResult
}

type Persister struct {
	ch      chan persistJob
	repo    PredictionWriter
	timeout time.Duration
	metrics *infra.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup

	// Submit держит RLock на время неблокирующей отправки, Stop берет Lock перед close
	mu     sync.RWMutex
	closed bool
}

func NewPersister(repo PredictionWriter, queueSize int, writeTimeout time.Duration, metrics *infra.Metrics, logger *zap.Logger) *Persister {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Persister{
		ch:      make(chan persistJob, queueSize),
		repo:    repo,
		timeout: writeTimeout,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "persister")),
	}
}

func (p *Persister) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop «запирает» вход и ждет, пока воркер всё допишет.
func (p *Persister) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.logger.Info("stopping persister: draining queue...", zap.Int("pending", len(p.ch)))
	p.wg.Wait()
	p.logger.Info("persister stopped gracefully")
}

// Submit ставит запись в очередь. Возвращает false, если задание сброшено.
func (p *Persister) Submit(record domain.FeatureRecord, result domain.OracleResult) bool {
	job := persistJob{id: uuid.NewString(), record: record, result: result}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("prediction dropped: persister is stopping", zap.String("job_id", job.id))
		p.metrics.PersistResults.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case p.ch <- job:
		p.metrics.PersistQueueLen.Set(float64(len(p.ch)))
		return true
	default:
		p.logger.Error("persist_queue_overflow", zap.String("job_id", job.id))
		p.metrics.PersistResults.WithLabelValues("dropped").Inc()
		return false
	}
}

func (p *Persister) worker() {
	defer p.wg.Done()

	// Канал закрывается только в Stop: range вычитает остаток и выйдет
	for job := range p.ch {
		p.metrics.PersistQueueLen.Set(float64(len(p.ch)))
		p.write(job)
	}
	p.logger.Info("persist worker finished")
}

func (p *Persister) write(job persistJob) {
	// Контекст запроса к этому моменту уже закрыт, у записи свой таймаут
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ok, err := p.repo.InsertPrediction(ctx, job.record, &job.result)
	switch {
	case err != nil:
		p.logger.Error("failed to persist prediction", zap.String("job_id", job.id), zap.Error(err))
		p.metrics.PersistResults.WithLabelValues("failed").Inc()
	case !ok:
		p.logger.Debug("prediction not persisted: no matching columns", zap.String("job_id", job.id))
		p.metrics.PersistResults.WithLabelValues("skipped").Inc()
	default:
		p.metrics.PersistResults.WithLabelValues("saved").Inc()
	}
}
