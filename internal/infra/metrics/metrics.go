package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_jobs_enqueued_total",
		Help: "Jobs written to the queue, by kind.",
	}, []string{"kind"})

	// outcome: done | retry | dead | skipped
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_jobs_processed_total",
		Help: "Job executions by kind and outcome.",
	}, []string{"kind", "outcome"})

	JobsDead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinic_jobs_dead",
		Help: "Jobs currently in dead-letter state.",
	})

	JobsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinic_jobs_relayed_total",
		Help: "Unpublished jobs re-sent to the broker by the outbox relay.",
	})

	DispatcherTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_dispatcher_ticks_total",
		Help: "Scheduled ticks claimed and enqueued, by kind.",
	}, []string{"kind"})

	BotUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_bot_updates_total",
		Help: "Telegram updates handled, by transport.",
	}, []string{"transport"})
)
