package stream

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/modalhub/modalhub/internal/metrics"
	"github.com/modalhub/modalhub/internal/queue"
	"github.com/modalhub/modalhub/internal/ws"
)

// audioFrame is the JSON wire format for audio messages.
type audioFrame struct {
	Audio string `json:"audio"`
	Rate  int    `json:"rate"`
}

// AudioInput buffers inbound audio frames for one connection's worker.
// Two wire formats are accepted: a JSON text frame {"audio": <base64>,
// "rate": <hz>} and a legacy raw binary frame, which is assumed to be at
// the configured default sample rate. Malformed frames are logged and
// dropped — an error here must never tear down the connection.
type AudioInput struct {
	defaultRate int
	m           *metrics.Metrics

	running atomic.Bool
	chunks  *queue.Queue[Chunk]
}

// NewAudioInput creates a running adapter. defaultRate is applied to legacy
// binary frames that carry no rate metadata.
func NewAudioInput(defaultRate int, m *metrics.Metrics) *AudioInput {
	a := &AudioInput{
		defaultRate: defaultRate,
		m:           m,
		chunks:      queue.New[Chunk](),
	}
	a.running.Store(true)
	return a
}

// HandleIncoming validates and enqueues one inbound frame. A no-op after Stop.
func (a *AudioInput) HandleIncoming(id string, msg ws.Message) {
	if !a.running.Load() {
		return
	}

	if msg.Binary {
		// Legacy path: raw PCM with no metadata.
		slog.Debug("stream: legacy binary audio frame — assuming default rate",
			"id", id, "rate", a.defaultRate)
		a.chunks.Push(Chunk{Data: msg.Data, Rate: a.defaultRate})
		a.m.FrameReceived()
		return
	}

	var frame audioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		slog.Error("stream: dropping malformed audio frame", "id", id, "err", err)
		a.m.FrameDropped()
		return
	}
	if frame.Audio == "" {
		slog.Error("stream: dropping audio frame without audio field", "id", id)
		a.m.FrameDropped()
		return
	}

	data, err := base64.StdEncoding.DecodeString(frame.Audio)
	if err != nil {
		slog.Error("stream: dropping audio frame with bad base64", "id", id, "err", err)
		a.m.FrameDropped()
		return
	}

	rate := frame.Rate
	if rate == 0 {
		rate = a.defaultRate
	}
	a.chunks.Push(Chunk{Data: data, Rate: rate})
	a.m.FrameReceived()
}

// GetChunk pops the next buffered chunk without blocking. The second return
// value is false when nothing is queued.
func (a *AudioInput) GetChunk() (Chunk, bool) {
	return a.chunks.TryPop()
}

// Pending returns the number of buffered chunks.
func (a *AudioInput) Pending() int {
	return a.chunks.Len()
}

// Stop makes subsequent HandleIncoming calls no-ops and drops the buffer.
func (a *AudioInput) Stop() {
	if a.running.CompareAndSwap(true, false) {
		a.chunks.Close()
	}
}
