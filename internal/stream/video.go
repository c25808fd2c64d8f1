package stream

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/modalhub/modalhub/internal/metrics"
	"github.com/modalhub/modalhub/internal/queue"
	"github.com/modalhub/modalhub/internal/ws"
)

// videoFrame is the JSON wire format for video messages.
type videoFrame struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoInput buffers inbound video frames for one connection's worker.
// A JSON text frame carries {"image": <base64>} with optional dimensions;
// a binary frame carries the encoded image bytes directly. Frames arriving
// above the configured rate cap are dropped rather than queued, so a
// camera pushing faster than the worker drains cannot grow the buffer
// without bound.
type VideoInput struct {
	m       *metrics.Metrics
	limiter *rate.Limiter

	running atomic.Bool
	chunks  *queue.Queue[Chunk]
}

// NewVideoInput creates a running adapter. maxFPS caps inbound frames per
// second; zero disables the cap.
func NewVideoInput(maxFPS int, m *metrics.Metrics) *VideoInput {
	v := &VideoInput{
		m:      m,
		chunks: queue.New[Chunk](),
	}
	if maxFPS > 0 {
		v.limiter = rate.NewLimiter(rate.Limit(maxFPS), maxFPS)
	}
	v.running.Store(true)
	return v
}

// HandleIncoming validates and enqueues one inbound frame. A no-op after Stop.
func (v *VideoInput) HandleIncoming(id string, msg ws.Message) {
	if !v.running.Load() {
		return
	}
	if v.limiter != nil && !v.limiter.Allow() {
		slog.Debug("stream: dropping video frame over rate cap", "id", id)
		v.m.FrameDropped()
		return
	}

	if msg.Binary {
		v.chunks.Push(Chunk{Data: msg.Data})
		v.m.FrameReceived()
		return
	}

	var frame videoFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		slog.Error("stream: dropping malformed video frame", "id", id, "err", err)
		v.m.FrameDropped()
		return
	}
	if frame.Image == "" {
		slog.Error("stream: dropping video frame without image field", "id", id)
		v.m.FrameDropped()
		return
	}

	data, err := base64.StdEncoding.DecodeString(frame.Image)
	if err != nil {
		slog.Error("stream: dropping video frame with bad base64", "id", id, "err", err)
		v.m.FrameDropped()
		return
	}

	v.chunks.Push(Chunk{Data: data, Width: frame.Width, Height: frame.Height})
	v.m.FrameReceived()
}

// GetChunk pops the next buffered frame without blocking. The second return
// value is false when nothing is queued.
func (v *VideoInput) GetChunk() (Chunk, bool) {
	return v.chunks.TryPop()
}

// Pending returns the number of buffered frames.
func (v *VideoInput) Pending() int {
	return v.chunks.Len()
}

// Stop makes subsequent HandleIncoming calls no-ops and drops the buffer.
func (v *VideoInput) Stop() {
	if v.running.CompareAndSwap(true, false) {
		v.chunks.Close()
	}
}
