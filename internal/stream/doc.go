// Package stream provides the per-connection buffer adapters that translate
// inbound WebSocket frames into chunks a worker can pull.
//
// AudioInput accepts JSON frames {"audio": <base64>, "rate": <hz>} and legacy
// raw binary frames (assumed to be at the configured default sample rate —
// the legacy path is a documented fallback, not unified with the JSON path).
// VideoInput accepts JSON frames {"image": <base64>, "width", "height"} and
// raw binary image frames, with an optional inbound frame-rate cap.
//
// Both adapters share the same contract: HandleIncoming validates, decodes,
// and enqueues (malformed input is logged and dropped — never surfaced to
// the hub's receive loop); GetChunk is a non-blocking pop; Stop turns
// HandleIncoming into a no-op.
package stream
