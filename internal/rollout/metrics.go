package rollout

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rolloutStartedTotal   *prometheus.CounterVec
	rolloutCompletedTotal *prometheus.CounterVec
	rolloutDuration       *prometheus.HistogramVec
	pollCyclesTotal       *prometheus.CounterVec
	stagesCompletedTotal  *prometheus.CounterVec
	taskBatchesTotal      *prometheus.CounterVec
	conflictsTotal        *prometheus.CounterVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// Metrics records progression events. Recording is a no-op until InitMetrics
// has run, so callers never need to know whether metrics are enabled.
type Metrics struct{}

// NewMetrics creates a Metrics instance. Registration happens lazily through
// InitMetrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics registers all Prometheus metrics. Called once at startup when
// the metrics server is enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		rolloutStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_rollout_started_total",
				Help: "Total number of rollouts created",
			},
			[]string{"plan"},
		)

		rolloutCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_rollout_completed_total",
				Help: "Total number of rollouts that finished, by outcome",
			},
			[]string{"plan", "status"},
		)

		rolloutDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollops_rollout_duration_seconds",
				Help:    "Wall-clock duration of the progression loop in seconds",
				Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"plan"},
		)

		pollCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_poll_cycles_total",
				Help: "Total number of rollout state polls",
			},
			[]string{"plan"},
		)

		stagesCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_stages_completed_total",
				Help: "Total number of stages that reported done",
			},
			[]string{"plan", "environment"},
		)

		taskBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_task_batches_total",
				Help: "Total number of task batch-run requests issued",
			},
			[]string{"plan", "environment"},
		)

		conflictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollops_idempotent_conflicts_total",
				Help: "Total number of batch-run conflicts swallowed as idempotent no-ops",
			},
			[]string{"plan"},
		)

		metricsRegistered = true
	})
}

// RecordRolloutStarted records a rollout creation.
func (m *Metrics) RecordRolloutStarted(plan string) {
	if !metricsRegistered || rolloutStartedTotal == nil {
		return
	}
	rolloutStartedTotal.WithLabelValues(plan).Inc()
}

// RecordRolloutCompleted records the outcome and duration of a progression run.
func (m *Metrics) RecordRolloutCompleted(plan, status string, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	if rolloutCompletedTotal != nil {
		rolloutCompletedTotal.WithLabelValues(plan, status).Inc()
	}
	if rolloutDuration != nil {
		rolloutDuration.WithLabelValues(plan).Observe(durationSeconds)
	}
}

// RecordPoll records one rollout state fetch.
func (m *Metrics) RecordPoll(plan string) {
	if !metricsRegistered || pollCyclesTotal == nil {
		return
	}
	pollCyclesTotal.WithLabelValues(plan).Inc()
}

// RecordStageCompleted records a stage reporting done.
func (m *Metrics) RecordStageCompleted(plan, environment string) {
	if !metricsRegistered || stagesCompletedTotal == nil {
		return
	}
	stagesCompletedTotal.WithLabelValues(plan, environment).Inc()
}

// RecordTaskBatch records a successful batch-run request.
func (m *Metrics) RecordTaskBatch(plan, environment string) {
	if !metricsRegistered || taskBatchesTotal == nil {
		return
	}
	taskBatchesTotal.WithLabelValues(plan, environment).Inc()
}

// RecordConflictSwallowed records an idempotent batch-run conflict.
func (m *Metrics) RecordConflictSwallowed(plan string) {
	if !metricsRegistered || conflictsTotal == nil {
		return
	}
	conflictsTotal.WithLabelValues(plan).Inc()
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
