package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Queue пишет задачу в таблицу jobs и только потом публикует её в брокер.
// Если публикация не удалась, задачу подберёт Relay.
type Queue struct {
	store       Store
	pub         Publisher
	maxAttempts int
	log         *slog.Logger
}

func NewQueue(store Store, pub Publisher, maxAttempts int, log *slog.Logger) *Queue {
	return &Queue{store: store, pub: pub, maxAttempts: maxAttempts, log: log.With("component", "queue")}
}

func (q *Queue) newJob(kind string, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Job{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     raw,
		Status:      StatusPending,
		MaxAttempts: q.maxAttempts,
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (uuid.UUID, error) {
	j, err := q.EnqueueTx(ctx, nil, kind, payload)
	if err != nil {
		return uuid.Nil, err
	}
	q.Publish(ctx, j)
	return j.ID, nil
}

// EnqueueTx только вставляет строку (в транзакции tx, если задана).
// После коммита вызывающий обязан сделать Publish.
func (q *Queue) EnqueueTx(ctx context.Context, tx db.Querier, kind string, payload any) (Job, error) {
	j, err := q.newJob(kind, payload)
	if err != nil {
		return Job{}, err
	}
	if err := q.store.Insert(ctx, tx, j); err != nil {
		return Job{}, fmt.Errorf("insert %s job: %w", kind, err)
	}
	metrics.JobsEnqueued.WithLabelValues(kind).Inc()
	return j, nil
}

// Publish отправляет задачи в брокер. Ошибки только логируются: строки остаются
// неопубликованными и будут переотправлены.
func (q *Queue) Publish(ctx context.Context, js ...Job) int {
	published := make([]uuid.UUID, 0, len(js))
	for _, j := range js {
		if err := q.pub.Publish(ctx, j.Message()); err != nil {
			q.log.Warn("publish failed, left for relay", "job_id", j.ID, "kind", j.Kind, "err", err)
			continue
		}
		published = append(published, j.ID)
	}
	if err := q.store.MarkPublished(ctx, published...); err != nil {
		q.log.Warn("mark published failed", "count", len(published), "err", err)
	}
	return len(published)
}

// Relay переотправляет задачи, которые висят неопубликованными дольше grace.
func (q *Queue) Relay(ctx context.Context, grace time.Duration, limit int) (int, error) {
	stale, err := q.store.Unpublished(ctx, time.Now().Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list unpublished: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n := q.Publish(ctx, stale...)
	metrics.JobsRelayed.Add(float64(n))
	q.log.Info("relayed unpublished jobs", "found", len(stale), "published", n)
	return n, nil
}
