package notifications

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports engine counters to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	created       *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	batchFlushes  *prometheus.CounterVec
	deliveryTimes *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifykit",
			Name:      "notifications_created_total",
			Help:      "Notifications accepted by the engine.",
		}, []string{"type"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifykit",
			Name:      "channel_attempts_total",
			Help:      "Channel send attempts by result.",
		}, []string{"channel", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifykit",
			Name:      "deliveries_total",
			Help:      "Completed deliveries by final status.",
		}, []string{"status"}),
		batchFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifykit",
			Name:      "batch_flushes_total",
			Help:      "Batch flushes by resulting batch status.",
		}, []string{"status"}),
		deliveryTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notifykit",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in a single channel send.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}

	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range []prometheus.Collector{m.created, m.attempts, m.deliveries, m.batchFlushes, m.deliveryTimes} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) notificationCreated(t Type) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) channelAttempt(ch Channel, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.attempts.WithLabelValues(string(ch), result).Inc()
	m.deliveryTimes.WithLabelValues(string(ch)).Observe(d.Seconds())
}

func (m *Metrics) delivery(status Status) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) batchFlush(status BatchStatus) {
	if m == nil {
		return
	}
	m.batchFlushes.WithLabelValues(string(status)).Inc()
}
