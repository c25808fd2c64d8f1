package ws

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/modalhub/modalhub/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pollInterval is how long the sender loops sleep when their queue is
	// empty. Stop flags are observed on the next tick.
	pollInterval = 50 * time.Millisecond
)

// Keepalive cycle: idle peers are pinged every pingPeriod and must produce
// some traffic (a pong at minimum) within pongWait or the connection is
// reaped. pongWait must exceed pingPeriod. Vars so tests can shorten the
// cycle.
var (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is a connection lifecycle event delivered to the connection callback.
type Event string

const (
	// EventConnect fires exactly once when a connection is accepted, before
	// any of its frames are dispatched.
	EventConnect Event = "connect"

	// EventDisconnect fires exactly once when a connection is torn down,
	// after its registry entries have been removed.
	EventDisconnect Event = "disconnect"
)

// ConnectionCallback receives lifecycle events for every connection.
type ConnectionCallback func(event Event, id string)

// MessageCallback receives inbound frames for one connection.
type MessageCallback func(id string, msg Message)

// Server is the connection-multiplexing WebSocket hub. It accepts client
// connections, assigns each a UUID, and runs three loops per connection:
// one receiving inbound frames, one draining the connection's outbound
// queue, and one draining its view of the global broadcast stream. The
// first loop to fail tears down the other two.
//
// The connection, queue, and callback registries are owned exclusively by
// the Server; a connection id is present iff its loops are active.
type Server struct {
	host string
	port int
	m    *metrics.Metrics

	running atomic.Bool
	httpSrv *http.Server
	ln      net.Listener

	mu           sync.RWMutex
	conns        map[string]*conn
	msgCallbacks map[string]MessageCallback
	connCallback ConnectionCallback
}

// NewServer creates a hub that will listen on host:port. The metrics
// registry may be nil.
func NewServer(host string, port int, m *metrics.Metrics) *Server {
	return &Server{
		host:         host,
		port:         port,
		m:            m,
		conns:        make(map[string]*conn),
		msgCallbacks: make(map[string]MessageCallback),
	}
}

// Start binds the listen address and begins accepting connections on a
// background goroutine. A bind failure (e.g. port already in use) is
// returned to the caller and is fatal — Start does not retry.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("ws: listen %s:%d: %w", s.host, s.port, err)
	}
	s.ln = ln
	s.running.Store(true)
	s.httpSrv = &http.Server{Handler: s}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("ws: server stopped", "err", err)
		}
	}()

	slog.Info("ws: hub listening", "addr", ln.Addr().String())
	return nil
}

// Stop flips the running flag and stops accepting new connections. Active
// sender loops observe the flag on their next poll tick and tear their
// connections down. Stop is idempotent and returns without waiting for the
// loops to finish.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	slog.Info("ws: hub stopped")
}

// Addr returns the bound listen address. Only valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// RegisterConnectionCallback sets the lifecycle callback. It is invoked
// exactly once per connect and once per disconnect, in that order, for
// every connection id.
func (s *Server) RegisterConnectionCallback(cb ConnectionCallback) {
	s.mu.Lock()
	s.connCallback = cb
	s.mu.Unlock()
	slog.Info("ws: connection callback registered")
}

// RegisterMessageCallback attaches the inbound handler for one connection.
// Safe to call only after the connect event has fired for that id.
func (s *Server) RegisterMessageCallback(id string, cb MessageCallback) {
	s.mu.Lock()
	s.msgCallbacks[id] = cb
	s.mu.Unlock()
	slog.Debug("ws: message callback registered", "id", id)
}

// Send enqueues msg for exactly one connection. Sends to an unknown id or a
// stopped hub are dropped silently (logged at debug level) — Send never
// returns an error.
func (s *Server) Send(id string, msg Message) {
	if !s.running.Load() {
		s.m.SendDropped()
		slog.Debug("ws: dropping message — hub stopped", "id", id)
		return
	}
	s.mu.RLock()
	c, ok := s.conns[id]
	s.mu.RUnlock()
	if !ok {
		s.m.SendDropped()
		slog.Debug("ws: dropping message for unknown connection", "id", id)
		return
	}
	c.local.Push(msg)
}

// Broadcast enqueues msg for every currently-connected client. With zero
// active connections it is a no-op. Each connection drains broadcasts on
// its own loop, so delivery interleaves freely with targeted messages.
func (s *Server) Broadcast(msg Message) {
	if !s.running.Load() {
		return
	}
	s.mu.RLock()
	targets := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	s.m.BroadcastQueued()
	for _, c := range targets {
		c.bcast.Push(msg)
	}
}

// HasConnections reports whether any client is currently connected.
func (s *Server) HasConnections() bool {
	return s.Count() > 0
}

// Count returns the number of currently connected clients.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves it until
// it closes. The connect event fires before the loops start, so a lifecycle
// callback can register the id's message callback without racing the first
// inbound frame.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.running.Load() {
		http.Error(w, "hub stopped", http.StatusServiceUnavailable)
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := newConn(uuid.NewString(), sock)

	s.mu.Lock()
	s.conns[c.id] = c
	cb := s.connCallback
	s.mu.Unlock()

	s.m.ConnOpened()
	slog.Info("ws: connection established", "id", c.id)

	if cb != nil {
		cb(EventConnect, c.id)
	}

	go s.drainLocal(c)
	go s.drainBroadcast(c)
	s.readLoop(c) // blocks until the connection closes
}

// readLoop dispatches inbound frames to the connection's registered message
// callback. Frames arriving before a callback is registered are dropped.
// Any inbound traffic (data or pong) extends the read deadline; a peer that
// stays silent past pongWait fails the next read and is torn down.
func (s *Server) readLoop(c *conn) {
	defer s.teardown(c, "read loop closed")

	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
		msg := Message{Binary: mt == websocket.BinaryMessage, Data: data}

		s.mu.RLock()
		cb := s.msgCallbacks[c.id]
		s.mu.RUnlock()
		if cb != nil {
			cb(c.id, msg)
		}
	}
}

// drainLocal delivers the connection's targeted messages in FIFO order and
// pings the peer when idle.
func (s *Server) drainLocal(c *conn) {
	defer s.teardown(c, "send loop closed")

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for s.running.Load() {
		if msg, ok := c.local.TryPop(); ok {
			if err := c.write(msg, writeTimeout); err != nil {
				return
			}
			s.m.MessageSent()
			continue
		}

		select {
		case <-c.done:
			return
		case <-ping.C:
			if err := c.ping(writeTimeout); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}

// drainBroadcast delivers the connection's view of the global broadcast
// stream. A send failure here tears down only this connection.
func (s *Server) drainBroadcast(c *conn) {
	defer s.teardown(c, "broadcast loop closed")

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for s.running.Load() {
		if msg, ok := c.bcast.TryPop(); ok {
			if err := c.write(msg, writeTimeout); err != nil {
				return
			}
			s.m.MessageSent()
			continue
		}

		select {
		case <-c.done:
			return
		case <-poll.C:
		}
	}
}

// teardown removes the connection from all registries and fires the
// disconnect event. Guarded so that the receive and send loops observing
// closure simultaneously still produce exactly one disconnect.
func (s *Server) teardown(c *conn, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)

		s.mu.Lock()
		delete(s.conns, c.id)
		delete(s.msgCallbacks, c.id)
		cb := s.connCallback
		s.mu.Unlock()

		c.local.Close()
		c.bcast.Close()
		_ = c.sock.Close()

		s.m.ConnClosed()
		if cb != nil {
			cb(EventDisconnect, c.id)
		}
		slog.Info("ws: connection closed", "id", c.id, "reason", reason)
	})
}
