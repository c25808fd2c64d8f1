package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session records one connection's pipeline lifetime and activity.
type Session struct {
	ID          string    `json:"id"`
	WorkerType  string    `json:"worker_type"`
	Modality    string    `json:"modality"`
	ConnectedAt time.Time `json:"connected_at"`

	// ClosedAt is zero while the connection is still open.
	ClosedAt time.Time `json:"closed_at,omitempty"`

	// Results counts messages the worker sent back on this connection.
	Results      uint64    `json:"results"`
	LastResultAt time.Time `json:"last_result_at,omitempty"`
}

// Active reports whether the session's connection is still open.
func (s *Session) Active() bool {
	return s.ClosedAt.IsZero()
}

// Store is a thread-safe registry of connection sessions, keyed by
// connection id. Closed sessions remain listed for the configured TTL so
// operators can inspect recently-finished pipelines; a background goroutine
// (Run) evicts them afterwards.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Session
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store that keeps closed sessions visible for ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Session),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Begin records a new session for a freshly connected id.
func (s *Store) Begin(id, workerType, modality string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = &Session{
		ID:          id,
		WorkerType:  workerType,
		Modality:    modality,
		ConnectedAt: s.now(),
	}
}

// RecordResult bumps the result counter for id. Unknown ids are ignored.
func (s *Store) RecordResult(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[id]; ok {
		sess.Results++
		sess.LastResultAt = s.now()
	}
}

// End marks the session closed. Unknown ids are ignored; ending an already
// closed session keeps its original close time.
func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[id]; ok && sess.ClosedAt.IsZero() {
		sess.ClosedAt = s.now()
	}
}

// Get returns a copy of the session for id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// List returns copies of all sessions still within visibility: every active
// session plus closed ones whose ClosedAt is within the TTL.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Session, 0, len(s.data))
	for _, sess := range s.data {
		if sess.Active() || sess.ClosedAt.After(cutoff) {
			out = append(out, *sess)
		}
	}
	return out
}

// Count returns the total number of sessions currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes closed sessions whose ClosedAt is older than now minus TTL.
// It returns the number of sessions removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, sess := range s.data {
		if !sess.Active() && !sess.ClosedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// interval (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("session: evicted closed sessions", "count", n)
			}
		}
	}
}
