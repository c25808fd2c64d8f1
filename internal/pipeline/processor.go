package pipeline

import (
	"log/slog"
	"sync"

	"github.com/modalhub/modalhub/internal/session"
	"github.com/modalhub/modalhub/internal/stream"
	"github.com/modalhub/modalhub/internal/ws"
)

// Source is the chunk buffer a worker pulls from — the stream adapters
// implement it.
type Source interface {
	// HandleIncoming accepts one inbound frame from the hub's receive loop.
	// It must never panic on malformed input.
	HandleIncoming(id string, msg ws.Message)

	// GetChunk pops the next chunk without blocking.
	GetChunk() (stream.Chunk, bool)

	// Stop makes HandleIncoming a no-op.
	Stop()
}

// Worker is one connection's processing unit. Process runs until Stop flips
// the worker's flag; Stop is a request, not a guarantee of immediate halt.
type Worker interface {
	Process(src Source)
	Stop()
}

// WorkerFactory builds one Worker per connection. respond delivers the
// worker's results back to that connection.
type WorkerFactory func(respond func(ws.Message)) (Worker, error)

// SourceFactory builds one Source per connection.
type SourceFactory func() Source

// Hub is the part of the ws.Server surface the processor needs.
type Hub interface {
	RegisterConnectionCallback(ws.ConnectionCallback)
	RegisterMessageCallback(id string, cb ws.MessageCallback)
	Send(id string, msg ws.Message)
}

// Processor binds worker and source lifecycles to hub connection events:
// one worker and one source per connection id, created on connect, stopped
// and discarded on disconnect. The worker goroutine is not joined — Stop
// makes its loop exit on the next flag check.
type Processor struct {
	newWorker  WorkerFactory
	newSource  SourceFactory
	workerType string
	modality   string
	sessions   *session.Store

	hub Hub

	mu      sync.Mutex
	workers map[string]Worker
	sources map[string]Source
}

// New creates a Processor. workerType and modality label the sessions it
// begins; sessions may be nil.
func New(newWorker WorkerFactory, newSource SourceFactory, workerType, modality string, sessions *session.Store) *Processor {
	return &Processor{
		newWorker:  newWorker,
		newSource:  newSource,
		workerType: workerType,
		modality:   modality,
		sessions:   sessions,
		workers:    make(map[string]Worker),
		sources:    make(map[string]Source),
	}
}

// SetServer subscribes the processor to the hub's connection events.
func (p *Processor) SetServer(hub Hub) {
	p.hub = hub
	hub.RegisterConnectionCallback(p.handleEvent)
}

// Count returns the number of connections with a live pipeline.
func (p *Processor) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stop tears down every tracked pipeline. Idempotent — ids already removed
// are skipped.
func (p *Processor) Stop() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.handleDisconnect(id)
	}
}

func (p *Processor) handleEvent(event ws.Event, id string) {
	switch event {
	case ws.EventConnect:
		p.handleConnect(id)
	case ws.EventDisconnect:
		p.handleDisconnect(id)
	}
}

// handleConnect builds the connection's worker and source, wires the source
// into the hub as the id's message callback, and launches the worker loop
// on its own goroutine.
func (p *Processor) handleConnect(id string) {
	worker, err := p.newWorker(func(msg ws.Message) {
		p.hub.Send(id, msg)
		if p.sessions != nil {
			p.sessions.RecordResult(id)
		}
	})
	if err != nil {
		slog.Error("pipeline: worker construction failed — connection left unserved",
			"id", id, "err", err)
		return
	}

	source := p.newSource()

	p.mu.Lock()
	p.workers[id] = worker
	p.sources[id] = source
	p.mu.Unlock()

	p.hub.RegisterMessageCallback(id, source.HandleIncoming)
	if p.sessions != nil {
		p.sessions.Begin(id, p.workerType, p.modality)
	}

	go worker.Process(source)
	slog.Info("pipeline: started processing for connection", "id", id)
}

// handleDisconnect stops and discards the connection's worker and source.
// Running it twice for the same id is a no-op.
func (p *Processor) handleDisconnect(id string) {
	p.mu.Lock()
	worker, hasWorker := p.workers[id]
	source, hasSource := p.sources[id]
	delete(p.workers, id)
	delete(p.sources, id)
	p.mu.Unlock()

	if !hasWorker && !hasSource {
		return
	}

	if hasWorker {
		worker.Stop()
	}
	if hasSource {
		source.Stop()
	}
	if p.sessions != nil {
		p.sessions.End(id)
	}
	slog.Info("pipeline: stopped processing for connection", "id", id)
}
