package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modalhub/modalhub/internal/queue"
)

// Message is one WebSocket payload, text or binary, carried unchanged
// between the wire and the queues.
type Message struct {
	Binary bool
	Data   []byte
}

// Text wraps s as a text message.
func Text(s string) Message {
	return Message{Data: []byte(s)}
}

// TextBytes wraps b as a text message without copying.
func TextBytes(b []byte) Message {
	return Message{Data: b}
}

// BinaryData wraps b as a binary message.
func BinaryData(b []byte) Message {
	return Message{Binary: true, Data: b}
}

// conn is one accepted connection together with its two outbound queues.
// The local queue carries targeted messages, the bcast queue this
// connection's copy of the global broadcast stream. Both are unbounded;
// enqueuing never blocks the caller.
type conn struct {
	id    string
	sock  *websocket.Conn
	local *queue.Queue[Message]
	bcast *queue.Queue[Message]

	// gorilla allows one concurrent writer per connection; the two sender
	// loops serialize their socket writes through writeMu.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, sock *websocket.Conn) *conn {
	return &conn{
		id:    id,
		sock:  sock,
		local: queue.New[Message](),
		bcast: queue.New[Message](),
		done:  make(chan struct{}),
	}
}

func (c *conn) write(msg Message, timeout time.Duration) error {
	mt := websocket.TextMessage
	if msg.Binary {
		mt = websocket.BinaryMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(timeout))
	return c.sock.WriteMessage(mt, msg.Data)
}

func (c *conn) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(timeout))
	return c.sock.WriteMessage(websocket.PingMessage, nil)
}
