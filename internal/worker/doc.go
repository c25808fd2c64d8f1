// Package worker provides the built-in per-connection workers. Every worker
// satisfies the same narrow contract — construct with a response callback,
// Process(source) until Stop flips the flag — and the type is selected once
// at startup via the worker.type config key, never by runtime lookup.
//
// Echo replies with chunk metadata and exists for wiring tests. Remote
// forwards chunks to an inference HTTP endpoint with configured timeouts
// and optional API-key auth; backend failures never tear down the hub, only
// (at worst) this one pipeline.
package worker
