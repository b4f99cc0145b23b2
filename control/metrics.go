// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for pollers and endpoints.
// Every method is a no-op on a nil *Metrics.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hiosock"

// Metrics groups the collectors shared by pollers, clients and servers.
type Metrics struct {
	ticks          *prometheus.CounterVec
	tickSeconds    *prometheus.HistogramVec
	drainErrors    *prometheus.CounterVec
	connects       *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
	timeouts       *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
	packetsDropped *prometheus.CounterVec
	connections    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poller_ticks_total",
			Help: "Number of completed poller ticks.",
		}, []string{"poller"}),
		tickSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poller_tick_seconds",
			Help:    "Wall time spent in one poller tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"poller"}),
		drainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poller_drain_errors_total",
			Help: "Errors returned while draining the I/O context.",
		}, []string{"poller"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_connects_total",
			Help: "Established connections.",
		}, []string{"endpoint"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_disconnects_total",
			Help: "Connections lost or closed.",
		}, []string{"endpoint"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_timeouts_total",
			Help: "Operations abandoned after their deadline.",
		}, []string{"endpoint", "op"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_bytes_sent_total",
			Help: "Bytes written to peers.",
		}, []string{"endpoint"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_bytes_received_total",
			Help: "Bytes read from peers.",
		}, []string{"endpoint"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "endpoint_packets_dropped_total",
			Help: "Packets rejected because no connection could carry them.",
		}, []string{"endpoint"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "server_connections",
			Help: "Currently registered server connections.",
		}, []string{"endpoint"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.ticks, m.tickSeconds, m.drainErrors, m.connects, m.disconnects,
		m.timeouts, m.bytesSent, m.bytesReceived, m.packetsDropped, m.connections,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveTick records one tick of poller.
func (m *Metrics) ObserveTick(poller string, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(poller).Inc()
	m.tickSeconds.WithLabelValues(poller).Observe(d.Seconds())
}

// DrainError counts a failed I/O context drain.
func (m *Metrics) DrainError(poller string) {
	if m == nil {
		return
	}
	m.drainErrors.WithLabelValues(poller).Inc()
}

// Connected counts an established connection.
func (m *Metrics) Connected(endpoint string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(endpoint).Inc()
}

// Disconnected counts a lost connection.
func (m *Metrics) Disconnected(endpoint string) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(endpoint).Inc()
}

// Timeout counts an abandoned operation.
func (m *Metrics) Timeout(endpoint, op string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(endpoint, op).Inc()
}

// BytesSent adds n written bytes.
func (m *Metrics) BytesSent(endpoint string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.WithLabelValues(endpoint).Add(float64(n))
}

// BytesReceived adds n read bytes.
func (m *Metrics) BytesReceived(endpoint string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.WithLabelValues(endpoint).Add(float64(n))
}

// PacketDropped counts a rejected packet.
func (m *Metrics) PacketDropped(endpoint string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(endpoint).Inc()
}

// SetConnections publishes the current server connection count.
func (m *Metrics) SetConnections(endpoint string, n int) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(endpoint).Set(float64(n))
}
