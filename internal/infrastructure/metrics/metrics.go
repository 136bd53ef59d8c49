package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "mysgw"

// Metrics holds the gateway's Prometheus collectors.
//
// It satisfies the gateway's indicator hook, so every transmit and receive
// indication ends up as a counter increment. All methods are safe for
// concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     *prometheus.CounterVec
	messagesReceived prometheus.Counter
	decodeFailures   prometheus.Counter
	truncations      prometheus.Counter
	connectAttempts  *prometheus.CounterVec
	connected        prometheus.Gauge
	nodesSeen        prometheus.Gauge
	connectionsLost  prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages handed to the MQTT link, by command.",
			},
			[]string{"command"},
		),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound MQTT deliveries, decoded or not.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Inbound deliveries dropped because topic or payload was malformed.",
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_truncations_total",
			Help:      "Outbound payloads cut to the maximum payload size.",
		}),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Broker connect attempts, by result.",
			},
			[]string{"result"}, // success/failed
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "Broker session state (1=connected, 0=not connected).",
		}),
		nodesSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_known",
			Help:      "Sensor nodes in the node registry.",
		}),
		connectionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_lost_total",
			Help:      "Broker sessions that dropped after being established.",
		}),
	}

	m.registry.MustRegister(
		m.messagesSent,
		m.messagesReceived,
		m.decodeFailures,
		m.truncations,
		m.connectAttempts,
		m.connected,
		m.nodesSeen,
		m.connectionsLost,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConnectionLost counts one dropped broker session.
func (m *Metrics) ConnectionLost() {
	m.connectionsLost.Inc()
}

// TrackInboxDrops exposes a running count of inbound deliveries the MQTT
// client discarded because its inbox was full.
func (m *Metrics) TrackInboxDrops(dropped func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_dropped_total",
			Help:      "Inbound deliveries dropped on a full client inbox.",
		},
		func() float64 { return float64(dropped()) },
	))
}

// Transmitted counts one outbound message.
func (m *Metrics) Transmitted(command string) {
	m.messagesSent.WithLabelValues(command).Inc()
}

// Received counts one inbound delivery.
func (m *Metrics) Received() {
	m.messagesReceived.Inc()
}

// DecodeFailed counts one dropped inbound delivery.
func (m *Metrics) DecodeFailed() {
	m.decodeFailures.Inc()
}

// Truncated counts one truncated outbound payload.
func (m *Metrics) Truncated() {
	m.truncations.Inc()
}

// ConnectAttempt counts one broker connect attempt.
func (m *Metrics) ConnectAttempt(success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

// SetConnected records the broker session state.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// SetNodes records the number of known sensor nodes.
func (m *Metrics) SetNodes(n int) {
	m.nodesSeen.Set(float64(n))
}
