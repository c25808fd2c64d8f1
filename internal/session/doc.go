// Package session tracks one record per hub connection: when it connected,
// which worker and modality serve it, how many results its worker produced,
// and when it closed. Closed sessions stay visible for a TTL so the HTTP
// API can show recently-finished pipelines, then a background loop evicts
// them.
package session
