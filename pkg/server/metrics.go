package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors of a Server.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "textcanvas").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for tick duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the tick duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "textcanvas",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors updated by the tick loop.
// A nil *Metrics records nothing.
type Metrics struct {
	connections      prometheus.Counter
	disconnects      prometheus.Counter
	activeClients    prometheus.Gauge
	framesReceived   prometheus.Counter
	messagesReceived prometheus.Counter
	broadcasts       prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	writeErrors      prometheus.Counter
	handshakeErrors  *prometheus.CounterVec
	tickDuration     prometheus.Histogram
}

// NewMetrics creates and registers the server collectors.
//
// Metrics collected:
//   - textcanvas_connections_total: upgraded connections
//   - textcanvas_disconnects_total: clients removed after close or read error
//   - textcanvas_active_clients: currently registered clients
//   - textcanvas_frames_received_total: socket reads carrying frame bytes
//   - textcanvas_messages_received_total: decoded payloads passed to OnData
//   - textcanvas_broadcasts_total: update messages sent to all clients
//   - textcanvas_bytes_sent_total / textcanvas_bytes_received_total
//   - textcanvas_write_errors_total: sends dropped for one client
//   - textcanvas_handshake_errors_total: rejected upgrades by reason
//     (read, too_large, timeout, missing_key, write)
//   - textcanvas_tick_duration_seconds: time spent in one tick
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		connections:      counter("connections_total", "Total number of upgraded connections"),
		disconnects:      counter("disconnects_total", "Total number of clients removed after close or read error"),
		framesReceived:   counter("frames_received_total", "Total number of socket reads carrying frame bytes"),
		messagesReceived: counter("messages_received_total", "Total number of decoded client payloads"),
		broadcasts:       counter("broadcasts_total", "Total number of update messages broadcast"),
		bytesSent:        counter("bytes_sent_total", "Total bytes written to clients"),
		bytesReceived:    counter("bytes_received_total", "Total bytes read from clients"),
		writeErrors:      counter("write_errors_total", "Total number of failed sends to a single client"),

		activeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_clients",
			Help:        "Number of connected clients",
			ConstLabels: config.ConstLabels,
		}),

		handshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshake_errors_total",
			Help:        "Total number of rejected upgrade requests by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tick_duration_seconds",
			Help:        "Time spent processing one tick",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

func (m *Metrics) recordConnect(active int) {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.activeClients.Set(float64(active))
}

func (m *Metrics) recordDisconnect(active int) {
	if m == nil {
		return
	}
	m.disconnects.Inc()
	m.activeClients.Set(float64(active))
}

func (m *Metrics) recordRead(bytes, messages int) {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
	m.messagesReceived.Add(float64(messages))
}

func (m *Metrics) recordSend(bytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.writeErrors.Inc()
		return
	}
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) recordBroadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) recordHandshakeError(reason string) {
	if m == nil {
		return
	}
	m.handshakeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeTick(start time.Time) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(time.Since(start).Seconds())
}
