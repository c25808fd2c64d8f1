package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/modalhub/modalhub/internal/pipeline"
	"github.com/modalhub/modalhub/internal/ws"
)

// chunkPollInterval is how long workers sleep between empty GetChunk polls.
const chunkPollInterval = 10 * time.Millisecond

// Echo replies to every chunk with its metadata. It exists for wiring
// tests and smoke checks — a client can verify the full path from frame
// to worker and back without any inference backend.
type Echo struct {
	respond func(ws.Message)
	running atomic.Bool
}

// NewEcho creates a running echo worker.
func NewEcho(respond func(ws.Message)) *Echo {
	e := &Echo{respond: respond}
	e.running.Store(true)
	return e
}

// Process pulls chunks from src until Stop is called.
func (e *Echo) Process(src pipeline.Source) {
	for e.running.Load() {
		chunk, ok := src.GetChunk()
		if !ok {
			time.Sleep(chunkPollInterval)
			continue
		}
		e.respond(ws.Text(fmt.Sprintf(`{"chunk_bytes":%d,"rate":%d}`, len(chunk.Data), chunk.Rate)))
	}
}

// Stop requests the processing loop to exit on its next flag check.
func (e *Echo) Stop() {
	e.running.Store(false)
}
