package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbchecker"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks            *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	leaseHeld        prometheus.Gauge
	broadcasts       *prometheus.CounterVec
	encodesSkipped   *prometheus.CounterVec
	outboxDropped    prometheus.Counter
	connections      prometheus.Gauge
	alertsDispatched *prometheus.CounterVec
	notifyFailures   prometheus.Counter
}

// New creates and registers all metrics, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "ticks_total",
			Help:      "Collector ticks by outcome.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "tick_duration_seconds",
			Help:      "Duration of collecting ticks.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 4, 8},
		}),
		leaseHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "lease_held",
			Help:      "1 when this instance holds the poller lease.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "broadcasts_total",
			Help:      "Encoded broadcasts by event.",
		}, []string{"event"}),
		encodesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "encodes_skipped_total",
			Help:      "Broadcasts skipped because no connection was interested.",
		}, []string{"event"}),
		outboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "outbox_dropped_total",
			Help:      "Messages dropped from full connection outboxes.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open live subscription connections.",
		}),
		alertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Alert notifications dispatched by batch level.",
		}, []string{"level"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notify_failures_total",
			Help:      "Alert notifications that failed to deliver.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.tickDuration,
		m.leaseHeld,
		m.broadcasts,
		m.encodesSkipped,
		m.outboxDropped,
		m.connections,
		m.alertsDispatched,
		m.notifyFailures,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records a tick outcome. Duration is only recorded for ticks
// that did work.
func (m *Metrics) ObserveTick(result string, d time.Duration, collected bool) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
	if collected {
		m.tickDuration.Observe(d.Seconds())
	}
}

// SetLeaseHeld records lease ownership.
func (m *Metrics) SetLeaseHeld(held bool) {
	if m == nil {
		return
	}
	if held {
		m.leaseHeld.Set(1)
	} else {
		m.leaseHeld.Set(0)
	}
}

// IncBroadcast counts an encoded broadcast.
func (m *Metrics) IncBroadcast(event string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(event).Inc()
}

// IncEncodeSkipped counts a broadcast skipped for lack of interest.
func (m *Metrics) IncEncodeSkipped(event string) {
	if m == nil {
		return
	}
	m.encodesSkipped.WithLabelValues(event).Inc()
}

// IncDropped counts a message dropped from a full outbox.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.outboxDropped.Inc()
}

// AddConnections adjusts the open connection gauge.
func (m *Metrics) AddConnections(delta int) {
	if m == nil {
		return
	}
	m.connections.Add(float64(delta))
}

// ObserveOutboxQueued exports fn as the total outbox depth gauge. Only the
// first registration per registry takes effect.
func (m *Metrics) ObserveOutboxQueued(fn func() int) {
	if m == nil {
		return
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "outbox_queued",
		Help:      "Frames waiting in connection outboxes.",
	}, func() float64 { return float64(fn()) })
	if err := m.registry.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

// IncAlert counts a dispatched notification.
func (m *Metrics) IncAlert(level string) {
	if m == nil {
		return
	}
	m.alertsDispatched.WithLabelValues(level).Inc()
}

// IncNotifyFailure counts a failed notification.
func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
