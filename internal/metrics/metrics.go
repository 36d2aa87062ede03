package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Acked           *prometheus.CounterVec
	Retried         *prometheus.CounterVec
	DeadLettered    *prometheus.CounterVec
	Latency         *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// A custom registry (instead of prometheus.DefaultRegisterer) keeps tests
// isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Messages published to a notification queue.",
		}, []string{"queue"}),

		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_publish_failures_total",
			Help: "Publish attempts that the broker did not accept.",
		}, []string{"queue"}),

		Acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_acked_total",
			Help: "Messages delivered to the Notification API and acknowledged.",
		}, []string{"queue"}),

		Retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_retried_total",
			Help: "Messages republished with an incremented retry count.",
		}, []string{"queue"}),

		DeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dead_lettered_total",
			Help: "Messages rejected to the dead-letter exchange.",
		}, []string{"queue", "reason"}),

		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Time from delivery to ack, retry or dead-letter.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Ready messages per queue, sampled periodically.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.Published,
		m.PublishFailures,
		m.Acked,
		m.Retried,
		m.DeadLettered,
		m.Latency,
		m.QueueDepth,
	)

	return m
}

// WorkerHooks returns the metric callbacks expected by consumer.MetricHooks.
// Centralises the prometheus observation calls so the consumer stays
// import-free.
func (m *Metrics) WorkerHooks() (
	onAcked func(queue string),
	onRetried func(queue string),
	onDeadLettered func(queue, reason string),
	onLatency func(queue string, d time.Duration),
) {
	onAcked = func(queue string) {
		m.Acked.WithLabelValues(queue).Inc()
	}
	onRetried = func(queue string) {
		m.Retried.WithLabelValues(queue).Inc()
	}
	onDeadLettered = func(queue, reason string) {
		m.DeadLettered.WithLabelValues(queue, reason).Inc()
	}
	onLatency = func(queue string, d time.Duration) {
		m.Latency.WithLabelValues(queue).Observe(d.Seconds())
	}
	return
}

// PublishHooks returns the callbacks the publisher reports through.
func (m *Metrics) PublishHooks() (onPublished, onFailed func(queue string)) {
	onPublished = func(queue string) { m.Published.WithLabelValues(queue).Inc() }
	onFailed = func(queue string) { m.PublishFailures.WithLabelValues(queue).Inc() }
	return
}

// SetQueueDepth records the latest sampled depth of a queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
