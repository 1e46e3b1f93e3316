package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
)

type TickStore interface {
	Claim(ctx context.Context, kind string, tick time.Time, fn func(ctx context.Context, tx db.Querier) error) (bool, error)
}

type Enqueuer interface {
	EnqueueTx(ctx context.Context, tx db.Querier, kind string, payload any) (jobs.Job, error)
	Publish(ctx context.Context, js ...jobs.Job) int
	Relay(ctx context.Context, grace time.Duration, limit int) (int, error)
}

type Schedule struct {
	Kind  string
	Every time.Duration
}

const (
	relayGrace = time.Minute
	relayBatch = 500
)

// Dispatcher раз в interval проверяет расписания и ставит задачи за наступившие тики.
// Тик: начало текущего периода (now.Truncate(every)); каждый тик ставится не больше одного раза.
type Dispatcher struct {
	ticks     TickStore
	queue     Enqueuer
	schedules []Schedule
	interval  time.Duration
	log       *slog.Logger
}

func New(ticks TickStore, queue Enqueuer, schedules map[string]time.Duration, interval time.Duration, log *slog.Logger) *Dispatcher {
	ss := make([]Schedule, 0, len(schedules))
	for kind, every := range schedules {
		ss = append(ss, Schedule{Kind: kind, Every: every})
	}
	sort.Slice(ss, func(i, j int) bool { return ss[i].Kind < ss[j].Kind })

	return &Dispatcher{
		ticks:     ticks,
		queue:     queue,
		schedules: ss,
		interval:  interval,
		log:       log.With("component", "dispatcher"),
	}
}

// Tick ставит задачи за все тики, наступившие к now. Возвращает число поставленных задач.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) (int, error) {
	var (
		enqueued []jobs.Job
		firstErr error
	)
	for _, s := range d.schedules {
		tick := now.UTC().Truncate(s.Every)

		var job jobs.Job
		claimed, err := d.ticks.Claim(ctx, s.Kind, tick, func(ctx context.Context, tx db.Querier) error {
			var err error
			job, err = d.queue.EnqueueTx(ctx, tx, s.Kind, jobs.TickPayload{Tick: tick})
			return err
		})
		if err != nil {
			d.log.Error("tick failed", "kind", s.Kind, "tick", tick, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", s.Kind, err)
			}
			continue
		}
		if !claimed {
			continue
		}
		metrics.DispatcherTicks.WithLabelValues(s.Kind).Inc()
		d.log.Info("tick enqueued", "kind", s.Kind, "tick", tick, "job_id", job.ID)
		enqueued = append(enqueued, job)
	}

	if len(enqueued) > 0 {
		d.queue.Publish(ctx, enqueued...)
	}
	return len(enqueued), firstErr
}

// Run крутит проверку расписаний и переотправку неопубликованных задач до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(d.log),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = d.Tick(ctx, time.Now())
		}),
		gocron.WithName("dispatch"),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return fmt.Errorf("schedule dispatch: %w", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := d.queue.Relay(ctx, relayGrace, relayBatch); err != nil {
				d.log.Error("outbox relay failed", "err", err)
			}
		}),
		gocron.WithName("outbox.relay"),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule relay: %w", err)
	}

	s.Start()
	d.log.Info("dispatcher started", "interval", d.interval, "schedules", len(d.schedules))

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	d.log.Info("dispatcher stopped")
	return nil
}
