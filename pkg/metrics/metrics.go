package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

// Metrics holds the engine collectors. It implements processor.Recorder and
// dispatcher.Observer.
type Metrics struct {
	Drops           *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	ProcessingTime  *prometheus.HistogramVec
	BatchesFlushed  *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	Deliveries      *prometheus.CounterVec
	DeliveryLatency *prometheus.HistogramVec
	Attempts        *prometheus.HistogramVec
	InvalidTargets  *prometheus.CounterVec

	QueueDepth   prometheus.Gauge
	OpenBatches  prometheus.Gauge
	TrackedUsers prometheus.Gauge
	Uptime       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Drops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped before delivery, by reason",
		}, []string{"type", "reason"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_completed_total",
			Help:      "Notifications that reached a delivery outcome",
		}, []string{"type", "status"}),
		ProcessingTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_processing_duration_seconds",
			Help:      "Time from dequeue to delivery outcome",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),
		BatchesFlushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Batches flushed into a digest",
		}, []string{"type"}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Members per flushed batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Sends to one target, by channel and result",
		}, []string{"channel", "result"}),
		DeliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Wall time of a send including retries",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"channel"}),
		Attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempts",
			Help:      "Attempts used per send",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}, []string{"channel"}),
		InvalidTargets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_targets_total",
			Help:      "Targets deactivated after a provider rejected them",
		}, []string{"channel"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Notifications waiting in the intake queue",
		}),
		OpenBatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_batches",
			Help:      "Batches waiting to be flushed",
		}),
		TrackedUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limited_users",
			Help:      "Users with rate limiter state",
		}),
		Uptime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the processor started",
		}),
	}
}

func (m *Metrics) Dropped(t notifications.Type, reason string) {
	m.Drops.WithLabelValues(string(t), reason).Inc()
}

func (m *Metrics) Completed(t notifications.Type, status notifications.Status, elapsed time.Duration) {
	m.Outcomes.WithLabelValues(string(t), string(status)).Inc()
	m.ProcessingTime.WithLabelValues(string(t)).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchFlushed(t notifications.Type, size int) {
	m.BatchesFlushed.WithLabelValues(string(t)).Inc()
	m.BatchSize.Observe(float64(size))
}

// Snapshot copies the processor gauges.
func (m *Metrics) Snapshot(s processor.Stats) {
	m.QueueDepth.Set(float64(s.QueueDepth))
	m.OpenBatches.Set(float64(s.OpenBatches))
	m.TrackedUsers.Set(float64(s.TrackedUsers))
	m.Uptime.Set(s.UptimeSeconds)
}

// ObserveDelivery records one (channel, target) send.
func (m *Metrics) ObserveDelivery(channel string, res dispatcher.Result) {
	result := "success"
	switch {
	case res.Success:
	case res.TokenInvalid:
		result = "invalid_target"
		m.InvalidTargets.WithLabelValues(channel).Inc()
	case dispatcher.IsRetryable(res.Err):
		result = "exhausted"
	default:
		result = "permanent"
	}
	m.Deliveries.WithLabelValues(channel, result).Inc()
	m.DeliveryLatency.WithLabelValues(channel).Observe(res.Duration().Seconds())
	m.Attempts.WithLabelValues(channel).Observe(float64(res.Attempts))
}
