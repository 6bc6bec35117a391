// Package jobs runs the periodic sweeper and exposes its metrics.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricSweepsTotal     = "workflow_sweeps_total"
	MetricSweepDuration   = "workflow_sweep_duration_seconds"
	MetricExpiredRequests = "workflow_expired_requests_total"
	MetricRemindersSent   = "workflow_reminders_sent_total"
	MetricSweepsSkipped   = "workflow_sweeps_skipped_total"
)

// Sweep outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the Prometheus collectors for sweeper activity.
type Metrics struct {
	sweepsTotal   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	expiredTotal  prometheus.Counter
	reminderTotal prometheus.Counter
	skippedTotal  prometheus.Counter
}

// NewMetrics creates the collectors. Call Register to attach them to a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSweepsTotal,
				Help: "Total number of sweep runs by completion status",
			},
			[]string{"status"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSweepDuration,
				Help:    "Histogram of sweep duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
		),
		expiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricExpiredRequests,
				Help: "Total number of approval requests moved to expired",
			},
		),
		reminderTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricRemindersSent,
				Help: "Total number of idle-document reminders sent",
			},
		),
		skippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSweepsSkipped,
				Help: "Total number of sweep ticks skipped because a sweep was already running",
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.sweepsTotal,
		m.sweepDuration,
		m.expiredTotal,
		m.reminderTotal,
		m.skippedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeSweep(status string, seconds float64) {
	m.sweepsTotal.WithLabelValues(status).Inc()
	m.sweepDuration.Observe(seconds)
}

func (m *Metrics) addExpired(n int)   { m.expiredTotal.Add(float64(n)) }
func (m *Metrics) addReminders(n int) { m.reminderTotal.Add(float64(n)) }
func (m *Metrics) incSkipped()        { m.skippedTotal.Inc() }
