package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modalhub/modalhub/internal/queue"
)

const (
	// retryInterval is how long the client waits between connect attempts.
	retryInterval = 5 * time.Second

	// dialTimeout bounds a single handshake attempt.
	dialTimeout = 10 * time.Second
)

// Client is a reconnecting WebSocket client with an unbounded send queue.
// Messages enqueued while disconnected are delivered after the next
// successful connect; a message whose write fails is put back at the head
// of the queue so order is preserved across reconnects.
type Client struct {
	url string

	running   atomic.Bool
	connected atomic.Bool

	sendq *queue.Queue[Message]

	cbMu sync.RWMutex
	cb   func(Message)

	sockMu sync.Mutex
	sock   *websocket.Conn
}

// NewClient creates a client for the given ws:// or wss:// URL.
func NewClient(url string) *Client {
	return &Client{
		url:   url,
		sendq: queue.New[Message](),
	}
}

// Start launches the connect-retry loop on a background goroutine.
func (c *Client) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	go c.run()
	slog.Info("ws: client started", "url", c.url)
}

// Send enqueues msg for delivery. A no-op once the client is stopped.
func (c *Client) Send(msg Message) {
	if c.running.Load() {
		c.sendq.Push(msg)
	}
}

// RegisterMessageCallback sets the handler invoked for every received message.
func (c *Client) RegisterMessageCallback(cb func(Message)) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
	slog.Info("ws: client message callback registered")
}

// IsConnected reports whether a connection is currently established.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Stop flips the running flag and closes the current connection, if any.
func (c *Client) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.sockMu.Lock()
	if c.sock != nil {
		_ = c.sock.Close()
	}
	c.sockMu.Unlock()
	c.connected.Store(false)
	slog.Info("ws: client stopped")
}

// run keeps one connection alive, retrying after failures.
func (c *Client) run() {
	for c.running.Load() {
		if c.connected.Load() {
			time.Sleep(pollInterval)
			continue
		}
		if err := c.connect(); err != nil {
			slog.Warn("ws: client connect failed — retrying",
				"url", c.url, "retry_in", retryInterval, "err", err)
			time.Sleep(retryInterval)
		}
	}
}

func (c *Client) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	sock, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.sockMu.Lock()
	c.sock = sock
	c.sockMu.Unlock()
	c.connected.Store(true)
	slog.Info("ws: client connected", "url", c.url)

	go c.receiveLoop(sock)
	go c.sendLoop(sock)
	return nil
}

func (c *Client) receiveLoop(sock *websocket.Conn) {
	defer c.dropConnection(sock)

	for c.running.Load() {
		mt, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		msg := Message{Binary: mt == websocket.BinaryMessage, Data: data}

		c.cbMu.RLock()
		cb := c.cb
		c.cbMu.RUnlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (c *Client) sendLoop(sock *websocket.Conn) {
	defer c.dropConnection(sock)

	for c.running.Load() && c.isCurrent(sock) {
		msg, ok := c.sendq.TryPop()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		mt := websocket.TextMessage
		if msg.Binary {
			mt = websocket.BinaryMessage
		}
		_ = sock.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sock.WriteMessage(mt, msg.Data); err != nil {
			// Put the message back at the head so delivery order survives
			// the reconnect.
			c.sendq.PushFront(msg)
			slog.Warn("ws: client send failed", "err", err)
			return
		}
	}
}

// isCurrent reports whether sock is still the client's live connection.
func (c *Client) isCurrent(sock *websocket.Conn) bool {
	c.sockMu.Lock()
	defer c.sockMu.Unlock()
	return sock == c.sock
}

// dropConnection tears down one connection generation. Loops belonging to a
// socket that has already been replaced must not invalidate the current
// connection, so the connected flag only flips when sock is still current.
func (c *Client) dropConnection(sock *websocket.Conn) {
	c.sockMu.Lock()
	current := sock == c.sock
	if current {
		c.sock = nil
		c.connected.Store(false)
	}
	c.sockMu.Unlock()

	_ = sock.Close()
	if current && c.running.Load() {
		slog.Info("ws: client connection lost")
	}
}
