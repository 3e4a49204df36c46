package capsolver

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report solver activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasksCreated  *prometheus.CounterVec
	solveOutcomes *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	pollAttempts  prometheus.Counter
	cacheLookups  *prometheus.CounterVec
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors already registered under the same names are reused, so several
// clients can share one registry. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		tasksCreated: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "capsolver",
				Subsystem: "client",
				Name:      "tasks_created_total",
				Help:      "Tasks accepted by createTask.",
			},
			[]string{"task_type"},
		)),
		solveOutcomes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "capsolver",
				Subsystem: "client",
				Name:      "solves_total",
				Help:      "Finished solves by outcome (ready, failed, timeout, error).",
			},
			[]string{"task_type", "outcome"},
		)),
		solveDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "capsolver",
				Subsystem: "client",
				Name:      "solve_duration_seconds",
				Help:      "Wall time from createTask to a terminal result.",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"task_type", "outcome"},
		)),
		pollAttempts: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "capsolver",
				Subsystem: "client",
				Name:      "poll_attempts_total",
				Help:      "getTaskResult round trips.",
			},
		)),
		cacheLookups: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "capsolver",
				Subsystem: "client",
				Name:      "clearance_cache_lookups_total",
				Help:      "Clearance cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// IncTaskCreated counts a task accepted by createTask.
func (m *Metrics) IncTaskCreated(taskType TaskType) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(string(taskType)).Inc()
}

// ObserveSolve records the outcome and duration of a solve.
func (m *Metrics) ObserveSolve(taskType TaskType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveOutcomes.WithLabelValues(string(taskType), outcome).Inc()
	m.solveDuration.WithLabelValues(string(taskType), outcome).Observe(duration.Seconds())
}

// IncPollAttempt counts one getTaskResult round trip.
func (m *Metrics) IncPollAttempt() {
	if m == nil {
		return
	}
	m.pollAttempts.Inc()
}

// IncCacheLookup counts a clearance cache lookup.
func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
