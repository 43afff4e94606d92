package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scoreboard's Prometheus collectors
type Metrics struct {
	submissionsCreated *prometheus.CounterVec
	computations       *prometheus.CounterVec
	computeDuration    *prometheus.HistogramVec
	rowsFetched        prometheus.Histogram
	snapshotRefreshes  *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *Metrics
)

// Scoreboard returns the process-wide metrics, registering them on first use
func Scoreboard() *Metrics {
	registryOnce.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scoreboard_submissions_created_total",
			Help: "Submissions accepted, by ingestion source.",
		}, []string{"source"}),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scoreboard_computations_total",
			Help: "Scoring computations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scoreboard_computation_seconds",
			Help:    "Time spent fetching and aggregating, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		rowsFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoreboard_rows_fetched",
			Help:    "Submission rows loaded per computation.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
		snapshotRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scoreboard_snapshot_refreshes_total",
			Help: "Leaderboard snapshot refreshes, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.submissionsCreated,
		m.computations,
		m.computeDuration,
		m.rowsFetched,
		m.snapshotRefreshes,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSubmission counts an accepted submission
func (m *Metrics) ObserveSubmission(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.submissionsCreated.WithLabelValues(source).Inc()
}

// ObserveComputation records the outcome and latency of one operation
func (m *Metrics) ObserveComputation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(operation, outcome(err)).Inc()
	m.computeDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveRows records how many submission rows a computation loaded
func (m *Metrics) ObserveRows(n int) {
	if m == nil {
		return
	}
	m.rowsFetched.Observe(float64(n))
}

// ObserveSnapshotRefresh counts a leaderboard snapshot refresh
func (m *Metrics) ObserveSnapshotRefresh(err error) {
	if m == nil {
		return
	}
	m.snapshotRefreshes.WithLabelValues(outcome(err)).Inc()
}
