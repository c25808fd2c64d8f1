package queue

import (
	"sync"
	"testing"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	for want := 0; want < 5; want++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop: empty at %d", want)
		}
		if got != want {
			t.Errorf("TryPop: got %d, want %d", got, want)
		}
	}
}

func TestTryPopEmpty(t *testing.T) {
	q := New[string]()
	if v, ok := q.TryPop(); ok {
		t.Errorf("TryPop on empty queue: got %q, want nothing", v)
	}
}

func TestPushFrontReordersToHead(t *testing.T) {
	q := New[int]()
	q.Push(2)
	q.Push(3)
	if !q.PushFront(1) {
		t.Fatal("PushFront returned false")
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop: got %d/%v, want %d", got, ok, want)
		}
	}

	q.Close()
	if q.PushFront(0) {
		t.Error("PushFront after Close: got true, want false")
	}
}

func TestPushAfterClose(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	if q.Push(2) {
		t.Error("Push after Close: got true, want false")
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop after Close: queue should be drained")
	}
	if n := q.Len(); n != 0 {
		t.Errorf("Len after Close: got %d, want 0", n)
	}
}

func TestConcurrentPushPop(t *testing.T) {
	const producers = 4
	const perProducer = 250

	q := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	popped := 0
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
		popped++
	}
	if popped != producers*perProducer {
		t.Errorf("popped %d items, want %d", popped, producers*perProducer)
	}
}
