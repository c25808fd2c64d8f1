package metrics

import (
	"fmt"
	"io"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the hub and pipeline counters. A single instance is created
// in main and passed to the components that report into it; all methods are
// nil-safe so wiring it up is optional (tests mostly pass nil).
type Metrics struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Uint64
	messagesSent      atomic.Uint64
	broadcasts        atomic.Uint64
	sendsDropped      atomic.Uint64
	framesReceived    atomic.Uint64
	framesDropped     atomic.Uint64
	workerErrors      atomic.Uint64
}

// New creates an empty Metrics registry.
func New() *Metrics {
	return &Metrics{}
}

// ConnOpened records a new connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Add(1)
	m.connectionsTotal.Add(1)
}

// ConnClosed records a connection teardown.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Add(-1)
}

// MessageSent records one outbound message delivered to a client.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Add(1)
}

// BroadcastQueued records one global broadcast enqueue.
func (m *Metrics) BroadcastQueued() {
	if m == nil {
		return
	}
	m.broadcasts.Add(1)
}

// SendDropped records a targeted send to an unknown or stopped connection.
func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.sendsDropped.Add(1)
}

// FrameReceived records one inbound media frame accepted by an adapter.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Add(1)
}

// FrameDropped records one inbound frame discarded (malformed or rate-capped).
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Add(1)
}

// WorkerError records a non-fatal worker processing error.
func (m *Metrics) WorkerError() {
	if m == nil {
		return
	}
	m.workerErrors.Add(1)
}

// ActiveConnections returns the current connection gauge value.
func (m *Metrics) ActiveConnections() int64 {
	if m == nil {
		return 0
	}
	return m.connectionsActive.Load()
}

// WriteTo renders all counters in the Prometheus text exposition format.
func (m *Metrics) WriteTo(w io.Writer) error {
	families := []*dto.MetricFamily{
		gauge("modalhub_connections_active",
			"Number of currently open WebSocket connections.",
			float64(m.connectionsActive.Load())),
		counter("modalhub_connections_total",
			"Total WebSocket connections accepted since start.",
			float64(m.connectionsTotal.Load())),
		counter("modalhub_messages_sent_total",
			"Total messages delivered to clients.",
			float64(m.messagesSent.Load())),
		counter("modalhub_broadcast_messages_total",
			"Total global broadcast messages enqueued.",
			float64(m.broadcasts.Load())),
		counter("modalhub_sends_dropped_total",
			"Total targeted sends dropped for unknown or stopped connections.",
			float64(m.sendsDropped.Load())),
		counter("modalhub_frames_received_total",
			"Total inbound media frames accepted by stream adapters.",
			float64(m.framesReceived.Load())),
		counter("modalhub_frames_dropped_total",
			"Total inbound frames discarded as malformed or rate-capped.",
			float64(m.framesDropped.Load())),
		counter("modalhub_worker_errors_total",
			"Total non-fatal worker processing errors.",
			float64(m.workerErrors.Load())),
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: &v}},
		},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: &v}},
		},
	}
}
