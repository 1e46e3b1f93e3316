package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
)

const (
	KindPurge            = "jobs.purge"
	KindDeadLetterReport = "deadletter.report"
)

// TickPayload: полезная нагрузка задач, которые ставит диспетчер.
type TickPayload struct {
	Tick time.Time `json:"tick"`
}

// RegisterMaintenance вешает на воркер служебные задачи диспетчера.
func RegisterMaintenance(w *Worker, store Store, retention time.Duration, log *slog.Logger) {
	log = log.With("component", "maintenance")

	w.Handle(KindPurge, func(ctx context.Context, j Job) error {
		var p TickPayload
		if err := j.Decode(&p); err != nil {
			return err
		}
		n, err := store.PurgeDone(ctx, p.Tick.Add(-retention))
		if err != nil {
			return err
		}
		log.Info("finished jobs purged", "count", n, "tick", p.Tick)
		return nil
	})

	w.Handle(KindDeadLetterReport, func(ctx context.Context, j Job) error {
		n, err := store.CountDead(ctx)
		if err != nil {
			return err
		}
		metrics.JobsDead.Set(float64(n))
		if n > 0 {
			log.Error("dead-letter jobs need attention", "count", n)
		}
		return nil
	})
}
