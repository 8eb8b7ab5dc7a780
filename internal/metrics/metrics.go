package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	StateSaves      prometheus.Counter
	StateSaveErrors prometheus.Counter
	CorruptSlices   prometheus.Counter
	Migrations      prometheus.Counter
	EnqueuedJobs    prometheus.Counter
	ProcessedJobs   prometheus.Counter
	FailedJobs      prometheus.Counter
	UpdatesTotal    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

// Global returns the process-wide metrics registered on the default registry.
func Global() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New builds a metrics set and registers it on reg. A nil reg leaves the
// counters unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StateSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "state_saves_total",
			Help:      "Total full re-saves of the application state",
		}),
		StateSaveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "state_save_errors_total",
			Help:      "Total state slices that failed to persist",
		}),
		CorruptSlices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "state_corrupt_slices_total",
			Help:      "Total persisted slices discarded because they failed to parse",
		}),
		Migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "state_migrations_total",
			Help:      "Total legacy slices migrated to the current schema",
		}),
		EnqueuedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "queue_enqueued_total",
			Help:      "Total jobs enqueued to redis stream",
		}),
		ProcessedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "queue_processed_total",
			Help:      "Total jobs successfully processed",
		}),
		FailedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "queue_failed_total",
			Help:      "Total jobs that ended with a provider or delivery error",
		}),
		UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kangsantri",
			Name:      "telegram_updates_total",
			Help:      "Total telegram updates received",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.StateSaves, m.StateSaveErrors, m.CorruptSlices, m.Migrations,
			m.EnqueuedJobs, m.ProcessedJobs, m.FailedJobs, m.UpdatesTotal,
		)
	}
	return m
}
