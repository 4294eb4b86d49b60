package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	Connections     prometheus.Gauge
	Registered      prometheus.Gauge
	Channels        prometheus.Gauge
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Errors          *prometheus.CounterVec
	LinesTooLong    prometheus.Counter
	FloodDropped    prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_connections",
			Help: "Open client connections",
		}),
		Registered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_registered_clients",
			Help: "Connections that completed registration",
		}),
		Channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_channels",
			Help: "Live channels",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_commands_total",
			Help: "Commands received by verb",
		}, []string{"command"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ircd_command_duration_seconds",
			Help:    "Time spent dispatching a command, broadcasts included",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"command"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_error_replies_total",
			Help: "Error numerics sent to clients",
		}, []string{"numeric"}),
		LinesTooLong: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_lines_too_long_total",
			Help: "Input lines rejected for exceeding the length limit",
		}),
		FloodDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_flood_dropped_total",
			Help: "Input lines dropped by flood control",
		}),
	}
}

// observe keeps the gauges in step with lifecycle events
func (m *Metrics) observe(ev *Event) error {
	switch ev.Kind {
	case EventConnect:
		m.Connections.Inc()
	case EventRegister:
		m.Registered.Inc()
	case EventQuit:
		m.Connections.Dec()
		if ev.Client.State().Registered() {
			m.Registered.Dec()
		}
	case EventChannelCreate:
		m.Channels.Inc()
	case EventChannelDestroy:
		m.Channels.Dec()
	}
	return nil
}
