// Package metrics exposes Prometheus collectors for the inbox engine and
// the realtime channel.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "console"

// Metrics groups every collector the console updates.
type Metrics struct {
	registry *prometheus.Registry

	events            *prometheus.CounterVec
	reconnects        prometheus.Counter
	realtimeConnected prometheus.Gauge
	refreshDuration   prometheus.Histogram
	refreshFailures   prometheus.Counter
	sends             *prometheus.CounterVec
	unreadTotal       prometheus.Gauge
	liveClients       prometheus.Gauge
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Message events received on the realtime channel.",
		}, []string{"direction"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Realtime connection attempts after a failure.",
		}),
		realtimeConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "1 while the realtime channel is connected.",
		}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of roster refresh cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "refresh_failures_total",
			Help:      "Roster refresh cycles that failed.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "sends_total",
			Help:      "Outbound sends by result.",
		}, []string{"result"}),
		unreadTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "unread_messages",
			Help:      "Sum of unread counters across the roster.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connections",
			Help:      "Browser websocket connections.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.reconnects,
		m.realtimeConnected,
		m.refreshDuration,
		m.refreshFailures,
		m.sends,
		m.unreadTotal,
		m.liveClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts a realtime message event.
func (m *Metrics) ObserveEvent(inbound bool) {
	if m == nil {
		return
	}
	if inbound {
		m.events.WithLabelValues("inbound").Inc()
		return
	}
	m.events.WithLabelValues("outbound").Inc()
}

// ObserveReconnect counts a reconnect attempt.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// SetConnected records the realtime connection state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.realtimeConnected.Set(1)
		return
	}
	m.realtimeConnected.Set(0)
}

// ObserveRefresh records one refresh cycle.
func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
	if err != nil {
		m.refreshFailures.Inc()
	}
}

// ObserveSend records one outbound send.
func (m *Metrics) ObserveSend(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sends.WithLabelValues("error").Inc()
		return
	}
	m.sends.WithLabelValues("ok").Inc()
}

// SetUnread records the roster-wide unread total.
func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unreadTotal.Set(float64(n))
}

// SetLiveConnections records the number of browser websocket clients.
func (m *Metrics) SetLiveConnections(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}
