// Package metrics holds the Prometheus collectors for the bridge. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scbridge"

// Metrics is the set of bridge collectors.
type Metrics struct {
	registry *prometheus.Registry

	packetsReceived  prometheus.Counter
	commandsHandled  *prometheus.CounterVec // by address
	commandsRejected *prometheus.CounterVec // by address and reason
	enginePackets    *prometheus.CounterVec // by target
	engineFailures   *prometheus.CounterVec // by target
	registrySize     prometheus.Gauge
	renders          *prometheus.CounterVec // by result
	renderDuration   prometheus.Histogram
}

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total number of packets handed to the interpreter",
		}),
		commandsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_handled_total",
			Help:      "Total number of commands interpreted",
		}, []string{"address"}),
		commandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Total number of commands rejected",
		}, []string{"address", "reason"}), // reason: parse, duplicate, unknown
		enginePackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "packets_sent_total",
			Help:      "Total number of packets sent to the engine processes",
		}, []string{"target"}),
		engineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "send_failures_total",
			Help:      "Total number of packets dropped on send failure",
		}, []string{"target"}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_nodes",
			Help:      "Current number of named voices in the live registry",
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nrt",
			Name:      "renders_total",
			Help:      "Total number of offline renders by result",
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nrt",
			Name:      "render_duration_seconds",
			Help:      "Time from score generation to the engine's completion signal",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.packetsReceived,
		m.commandsHandled,
		m.commandsRejected,
		m.enginePackets,
		m.engineFailures,
		m.registrySize,
		m.renders,
		m.renderDuration,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) PacketReceived() {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
}

func (m *Metrics) CommandHandled(address string) {
	if m == nil {
		return
	}
	m.commandsHandled.WithLabelValues(address).Inc()
}

func (m *Metrics) CommandRejected(address, reason string) {
	if m == nil {
		return
	}
	m.commandsRejected.WithLabelValues(address, reason).Inc()
}

// EngineSend records one send to target, failed or not.
func (m *Metrics) EngineSend(target string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.engineFailures.WithLabelValues(target).Inc()
		return
	}
	m.enginePackets.WithLabelValues(target).Inc()
}

func (m *Metrics) RegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}

// Render records a finished offline render.
func (m *Metrics) Render(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.renders.WithLabelValues(result).Inc()
	m.renderDuration.Observe(d.Seconds())
}
