// Package httpapi implements the HTTP collaborator that runs alongside the
// WebSocket hub.
//
// POST requests are decoded as JSON and handed to the registered callback
// together with the request path; the callback's return value is sent back
// as JSON (strings are wrapped as {"response": ...}). Missing callback →
// 500, non-POST on callback paths → 405, invalid JSON → 400, callback
// error → 500 {"error": ...}.
//
// Built-in routes: GET /healthz (plain 200 OK), GET /metrics (Prometheus
// text exposition), GET /api/v1/sessions (live and recently-closed
// pipeline sessions).
package httpapi
