// Package pipeline orchestrates per-connection processing. On every hub
// connect event the Processor builds one Worker and one Source through the
// factories chosen at startup, registers the Source as the connection's
// inbound handler, and runs the Worker on its own goroutine; on disconnect
// it stops and discards both. At most one worker/source pair exists per
// connection id, inserted and removed together.
package pipeline
