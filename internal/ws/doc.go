// Package ws implements the WebSocket hub at the heart of modalhub, plus a
// reconnecting client for streaming media to a remote hub.
//
// Server accepts client connections and gives each one a UUID, an unbounded
// outbound queue, and a private view of the global broadcast stream. Three
// loops run per connection — receive, drain-local, drain-broadcast — and the
// first to fail tears down the other two, firing the disconnect event exactly
// once. A failure on one connection never affects another: every connection
// has its own queues and its own loops.
//
// Delivery guarantees:
//   - Send(id, msg) is FIFO per connection.
//   - Broadcast(msg) reaches every connection active at enqueue time.
//   - No ordering is guaranteed between the targeted and broadcast streams,
//     nor across connections.
//
// Send to an unknown id is dropped and logged at debug level; it never
// returns an error. Stop is cooperative: loops observe the flag on their
// next poll tick (50 ms). Idle peers are pinged every 30 s and reaped after
// 60 s without traffic, so half-open connections do not accumulate.
package ws
