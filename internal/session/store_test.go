package session

import (
	"testing"
	"time"
)

// fixedClock returns a Store whose clock the test controls.
func fixedClock(ttl time.Duration) (*Store, *time.Time) {
	st := New(ttl)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	return st, &now
}

func TestBeginGetEnd(t *testing.T) {
	st, now := fixedClock(time.Minute)
	st.Begin("c1", "echo", "audio")

	sess, ok := st.Get("c1")
	if !ok {
		t.Fatal("Get: session missing after Begin")
	}
	if !sess.Active() {
		t.Error("session should be active after Begin")
	}
	if sess.WorkerType != "echo" || sess.Modality != "audio" {
		t.Errorf("session fields: got %q/%q", sess.WorkerType, sess.Modality)
	}

	*now = now.Add(10 * time.Second)
	st.End("c1")
	sess, _ = st.Get("c1")
	if sess.Active() {
		t.Error("session should be closed after End")
	}
	if got := sess.ClosedAt.Sub(sess.ConnectedAt); got != 10*time.Second {
		t.Errorf("close delta: got %v, want 10s", got)
	}
}

func TestRecordResult(t *testing.T) {
	st, _ := fixedClock(time.Minute)
	st.Begin("c1", "echo", "audio")
	st.RecordResult("c1")
	st.RecordResult("c1")
	st.RecordResult("ghost") // unknown id ignored

	sess, _ := st.Get("c1")
	if sess.Results != 2 {
		t.Errorf("Results: got %d, want 2", sess.Results)
	}
	if sess.LastResultAt.IsZero() {
		t.Error("LastResultAt: not set")
	}
}

func TestEndIdempotent(t *testing.T) {
	st, now := fixedClock(time.Minute)
	st.Begin("c1", "echo", "audio")
	st.End("c1")
	first, _ := st.Get("c1")

	*now = now.Add(30 * time.Second)
	st.End("c1")
	second, _ := st.Get("c1")
	if !second.ClosedAt.Equal(first.ClosedAt) {
		t.Error("second End changed ClosedAt")
	}
}

func TestListExcludesExpiredClosed(t *testing.T) {
	st, now := fixedClock(time.Minute)
	st.Begin("open", "echo", "audio")
	st.Begin("closed-fresh", "echo", "audio")
	st.Begin("closed-old", "echo", "audio")

	st.End("closed-old")
	*now = now.Add(2 * time.Minute) // closed-old now past TTL
	st.End("closed-fresh")

	got := map[string]bool{}
	for _, sess := range st.List() {
		got[sess.ID] = true
	}
	if !got["open"] || !got["closed-fresh"] {
		t.Errorf("List: missing live sessions, got %v", got)
	}
	if got["closed-old"] {
		t.Error("List: expired closed session still listed")
	}
}

func TestEvict(t *testing.T) {
	st, now := fixedClock(time.Minute)
	st.Begin("open", "echo", "audio")
	st.Begin("stale", "echo", "audio")
	st.End("stale")

	removed := st.Evict(now.Add(2 * time.Minute))
	if removed != 1 {
		t.Errorf("Evict: got %d removed, want 1", removed)
	}
	if _, ok := st.Get("stale"); ok {
		t.Error("stale session still present after Evict")
	}
	if _, ok := st.Get("open"); !ok {
		t.Error("active session must survive Evict")
	}
}
