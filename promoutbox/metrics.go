// Package promoutbox adapts outbox.Metrics onto github.com/prometheus/client_golang,
// exposing the relay's counters and gauges for scraping.
package promoutbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velmie/outbox"
)

const namespace = "outbox"

// Metrics is a prometheus.Collector-backed implementation of outbox.Metrics.
type Metrics struct {
	batchDuration      prometheus.Histogram
	completed          prometheus.Counter
	failed             prometheus.Counter
	dead               prometheus.Counter
	reaped             prometheus.Counter
	pending            prometheus.Gauge
	processing         prometheus.Gauge
	deadLetter         prometheus.Gauge
	oldestPendingAge   prometheus.Gauge
	backlogUtilization prometheus.Gauge
}

var _ outbox.Metrics = (*Metrics)(nil)

// NewMetrics constructs a Metrics registered against prometheus.DefaultRegisterer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith constructs a Metrics registered against reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to process one claimed batch of events.",
			Buckets:   prometheus.DefBuckets,
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "completed_total", Help: "Events transitioned to COMPLETED.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "failed_total", Help: "Events transitioned to FAILED (retriable).",
		}),
		dead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dead_letter_total", Help: "Events transitioned to DEAD_LETTER.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reaped_total", Help: "Events recovered from abandoned leases.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending", Help: "Current PENDING/FAILED backlog size.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "processing", Help: "Events currently leased for processing.",
		}),
		deadLetter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dead_letter", Help: "Current DEAD_LETTER row count.",
		}),
		oldestPendingAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "oldest_pending_age_seconds", Help: "Age of the oldest PENDING/FAILED row.",
		}),
		backlogUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "backlog_utilization_percent", Help: "Pending backlog as a percent of the configured maximum.",
		}),
	}

	reg.MustRegister(
		m.batchDuration, m.completed, m.failed, m.dead, m.reaped,
		m.pending, m.processing, m.deadLetter, m.oldestPendingAge, m.backlogUtilization,
	)

	return m
}

func (m *Metrics) ObserveBatchDuration(d time.Duration) { m.batchDuration.Observe(d.Seconds()) }
func (m *Metrics) AddCompleted(n int)                   { m.completed.Add(float64(n)) }
func (m *Metrics) AddFailed(n int)                      { m.failed.Add(float64(n)) }
func (m *Metrics) AddDead(n int)                        { m.dead.Add(float64(n)) }
func (m *Metrics) AddReaped(n int)                      { m.reaped.Add(float64(n)) }
func (m *Metrics) SetPending(n int)                     { m.pending.Set(float64(n)) }
func (m *Metrics) SetProcessing(n int)                  { m.processing.Set(float64(n)) }
func (m *Metrics) SetDeadLetter(n int)                  { m.deadLetter.Set(float64(n)) }
func (m *Metrics) SetOldestPendingAge(seconds float64)  { m.oldestPendingAge.Set(seconds) }
func (m *Metrics) SetBacklogUtilization(percent float64) { m.backlogUtilization.Set(percent) }
