// Package observability exposes Prometheus metrics for the event core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery kinds.
const (
	Unicast   = "unicast"
	Broadcast = "broadcast"
)

// Dispatch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomePanic    = "panic"
)

// Metrics collects the event core counters. A nil *Metrics is a valid no-op collector.
type Metrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	dropped     prometheus.Counter
	latency     *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupcart_connections",
			Help: "Live client connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupcart_events_total",
			Help: "Inbound events by name and outcome.",
		}, []string{"event", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupcart_frames_delivered_total",
			Help: "Frames handed to connection outboxes.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupcart_frames_dropped_total",
			Help: "Frames lost because the peer was gone or too slow.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupcart_handler_duration_seconds",
			Help:    "Handler execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
	}
	reg.MustRegister(m.connections, m.events, m.deliveries, m.dropped, m.latency)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) ObserveEvent(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name, outcome).Inc()
	m.latency.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) Delivered(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveries.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
