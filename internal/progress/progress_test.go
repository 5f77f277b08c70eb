package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noteport/noteport/internal/types"
)

func TestEmitDoesNotBlockOnSlowCallback(t *testing.T) {
	release := make(chan struct{})
	var delivered atomic.Int32
	r := NewReporter(func(Event) {
		<-release
		delivered.Add(1)
	})

	start := time.Now()
	for i := 0; i < 100; i++ {
		r.Emit(Event{Current: i + 1, Total: 100})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Emit blocked for %v", elapsed)
	}

	close(release)
	r.Close()
	if got := delivered.Load(); got != 100 {
		t.Errorf("delivered %d events, want 100", got)
	}
}

func TestEventsArriveInOrderExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	r := NewReporter(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Current)
		mu.Unlock()
	})
	for i := 1; i <= 50; i++ {
		r.Emit(Event{Current: i})
	}
	r.Close()
	r.Close()

	if len(seen) != 50 {
		t.Fatalf("got %d events, want 50", len(seen))
	}
	for i, v := range seen {
		if v != i+1 {
			t.Fatalf("event %d = %d, out of order", i, v)
		}
	}

	// Emits after Close are ignored.
	r.Emit(Event{Current: 99})
	if len(seen) != 50 {
		t.Error("event delivered after Close")
	}
}

func TestPanickingCallbackIsContained(t *testing.T) {
	var calls atomic.Int32
	r := NewReporter(func(Event) {
		calls.Add(1)
		panic("boom")
	})
	r.Emit(Event{})
	r.Emit(Event{})
	r.Close()
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestNilCallback(t *testing.T) {
	r := NewReporter(nil)
	r.Emit(Event{})
	r.Close()
}

func TestCollector(t *testing.T) {
	var events []Event
	var mu sync.Mutex
	summary := types.NewSummary(types.NewOperationContext("import"), "directory", 2)
	c := NewCollector(summary, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	c.Record(types.Succeeded("a.md", "n1"))
	c.Warn("index skipped: %s", "disk full")
	c.Record(types.Failed("b.md", types.CodeReadFailed, errTest))
	s := c.Close()

	if s.ProcessedFiles != 2 || s.FailedFiles != 1 || len(s.Warnings) != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(events) != 2 || events[1].Percent() != 100 {
		t.Errorf("events = %+v", events)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("unreadable")
