package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
)

type Handler func(ctx context.Context, j Job) error

// Retrier откладывает повторную доставку на время задержки попытки attempt.
type Retrier interface {
	Retry(ctx context.Context, m Message, attempt int) error
}

// Consumer доставляет сообщения из брокера в fn, не больше concurrency одновременно.
// Ошибка fn означает сбой инфраструктуры: сообщение вернётся в очередь.
type Consumer interface {
	Consume(ctx context.Context, concurrency int, fn func(ctx context.Context, m Message) error) error
}

type Worker struct {
	store       Store
	retrier     Retrier
	maxAttempts int
	log         *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(store Store, retrier Retrier, maxAttempts int, log *slog.Logger) *Worker {
	return &Worker{
		store:       store,
		retrier:     retrier,
		maxAttempts: maxAttempts,
		log:         log.With("component", "worker"),
		handlers:    map[string]Handler{},
	}
}

func (w *Worker) Handle(kind string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

func (w *Worker) handler(kind string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[kind]
	return h, ok
}

func (w *Worker) Run(ctx context.Context, c Consumer, concurrency int) error {
	w.log.Info("worker started", "concurrency", concurrency, "max_attempts", w.maxAttempts)
	return c.Consume(ctx, concurrency, func(ctx context.Context, m Message) error {
		return w.Process(ctx, m.JobID)
	})
}

// Process выполняет одну доставку задачи. Возвращает ошибку только при сбое
// базы или брокера; ошибки обработчика фиксируются в строке задачи.
func (w *Worker) Process(ctx context.Context, id uuid.UUID) error {
	j, err := w.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	if j == nil {
		w.log.Warn("job row not found, dropping message", "job_id", id)
		return nil
	}
	log := w.log.With("job_id", j.ID, "kind", j.Kind)

	if j.Status.Finished() {
		log.Debug("duplicate delivery skipped", "status", j.Status)
		metrics.JobsProcessed.WithLabelValues(j.Kind, "skipped").Inc()
		return nil
	}

	attempt := j.Attempts + 1
	herr := w.run(ctx, *j)
	if herr == nil {
		if err := w.store.MarkDone(ctx, j.ID, attempt); err != nil {
			return fmt.Errorf("mark done: %w", err)
		}
		metrics.JobsProcessed.WithLabelValues(j.Kind, "done").Inc()
		log.Debug("job done", "attempt", attempt)
		return nil
	}

	limit := j.MaxAttempts
	if limit <= 0 {
		limit = w.maxAttempts
	}

	if attempt >= limit || errors.Is(herr, ErrPermanent) || errors.Is(herr, ErrUnknownKind) {
		moved, err := w.store.MarkDead(ctx, j.ID, attempt, herr.Error())
		if err != nil {
			return fmt.Errorf("mark dead: %w", err)
		}
		if moved {
			metrics.JobsProcessed.WithLabelValues(j.Kind, "dead").Inc()
			metrics.JobsDead.Inc()
			log.Error("job dead-lettered", "attempt", attempt, "max_attempts", limit, "err", herr)
		}
		return nil
	}

	if err := w.store.MarkRetrying(ctx, j.ID, attempt, herr.Error()); err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}
	m := j.Message()
	m.Attempt = attempt
	if err := w.retrier.Retry(ctx, m, attempt); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	metrics.JobsProcessed.WithLabelValues(j.Kind, "retry").Inc()
	log.Warn("job failed, retry scheduled", "attempt", attempt, "max_attempts", limit, "err", herr)
	return nil
}

func (w *Worker) run(ctx context.Context, j Job) (err error) {
	h, ok := w.handler(j.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, j.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, j)
}
