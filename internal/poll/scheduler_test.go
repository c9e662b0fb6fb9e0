package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGate struct {
	visible atomic.Bool
	active  atomic.Bool
}

func openGate() *fakeGate {
	g := &fakeGate{}
	g.visible.Store(true)
	g.active.Store(true)
	return g
}

func (g *fakeGate) IsPageVisible() bool               { return g.visible.Load() }
func (g *fakeGate) IsUserActive(_ time.Duration) bool { return g.active.Load() }

type fakeTarget struct {
	mu sync.Mutex
	id string
}

func (f *fakeTarget) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeTarget) set(id string) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

func TestConversationPollingTicksSilently(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var calls, loud atomic.Int32
	s.StartConversationPolling(func(_ context.Context, silent bool) error {
		calls.Add(1)
		if !silent {
			loud.Add(1)
		}
		return nil
	}, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if calls.Load() == 0 {
		t.Fatal("no ticks fired")
	}
	if loud.Load() != 0 {
		t.Errorf("%d ticks were not silent", loud.Load())
	}
}

func TestRestartCancelsPreviousTimer(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var first, second atomic.Int32
	s.StartConversationPolling(func(context.Context, bool) error { first.Add(1); return nil }, 20*time.Millisecond)
	s.StartConversationPolling(func(context.Context, bool) error { second.Add(1); return nil }, 20*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if first.Load() != 0 {
		t.Errorf("replaced timer fired %d times", first.Load())
	}
	if second.Load() == 0 {
		t.Error("new timer never fired")
	}
}

func TestGatedTicksAreNotReplayed(t *testing.T) {
	g := openGate()
	g.active.Store(false)
	s := NewScheduler(g, &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var calls atomic.Int32
	s.StartConversationPolling(func(context.Context, bool) error { calls.Add(1); return nil }, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("gated ticks fired %d refreshes", calls.Load())
	}

	g.active.Store(true)
	time.Sleep(25 * time.Millisecond)
	// Roughly ten ticks were gated; none of them may be replayed now.
	if n := calls.Load(); n > 4 {
		t.Errorf("got %d refreshes right after reactivation, want at most the natural cadence", n)
	}
}

func TestHiddenPageGatesTicks(t *testing.T) {
	g := openGate()
	g.visible.Store(false)
	s := NewScheduler(g, &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var calls atomic.Int32
	s.StartConversationPolling(func(context.Context, bool) error { calls.Add(1); return nil }, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("hidden page still polled %d times", calls.Load())
	}
}

func TestMessagePollingReadsLiveTarget(t *testing.T) {
	target := &fakeTarget{id: "a"}
	s := NewScheduler(openGate(), target, Options{}, nil)
	defer s.Close()

	var mu sync.Mutex
	var seen []string
	s.StartMessagePolling("a", func(_ context.Context, chatID string, _ bool) error {
		mu.Lock()
		seen = append(seen, chatID)
		mu.Unlock()
		return nil
	}, 10*time.Millisecond)

	time.Sleep(35 * time.Millisecond)
	target.set("b")
	time.Sleep(15 * time.Millisecond)
	mu.Lock()
	mark := len(seen)
	mu.Unlock()
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if mark == len(seen) {
		t.Fatal("no ticks after the switch")
	}
	for _, id := range seen[mark:] {
		if id != "b" {
			t.Errorf("tick after switch polled %q, want b", id)
		}
	}
}

func TestMessagePollingSkipsWhenNothingOpen(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var calls atomic.Int32
	s.StartMessagePolling("", func(context.Context, string, bool) error { calls.Add(1); return nil }, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("polled %d times with no open chat", calls.Load())
	}
}

func TestOverlappingTicksJoinInFlightRefresh(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{}, Options{}, nil)
	defer s.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	s.StartConversationPolling(func(ctx context.Context, _ bool) error {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, 10*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("got %d concurrent refreshes, want 1", n)
	}
	close(release)
}

func TestTriggerConversationRefreshDebounces(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{}, Options{NewChatDebounce: 30 * time.Millisecond}, nil)
	defer s.Close()

	var calls atomic.Int32
	s.StartConversationPolling(func(context.Context, bool) error { calls.Add(1); return nil }, time.Hour)

	for i := 0; i < 5; i++ {
		s.TriggerConversationRefresh()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("got %d refreshes, want 1 after debounce", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(openGate(), &fakeTarget{id: "a"}, Options{}, nil)
	var calls atomic.Int32
	s.StartConversationPolling(func(context.Context, bool) error { calls.Add(1); return nil }, 10*time.Millisecond)
	s.StartMessagePolling("a", func(context.Context, string, bool) error { calls.Add(1); return nil }, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	s.StopMessagePolling()
	s.StopConversationPolling()

	time.Sleep(20 * time.Millisecond)
	before := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != before {
		t.Errorf("timers kept firing after Stop: %d -> %d", before, calls.Load())
	}
	s.Close()
}
