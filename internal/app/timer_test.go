package app

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *recordingBroadcaster) ToSession(sessionID uuid.UUID, evt Event) {
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) ToAdmins(sessionID uuid.UUID, evt Event) {
	b.ToSession(sessionID, evt)
}

func (b *recordingBroadcaster) snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroadcaster) countByRound(eventType string, roundID uuid.UUID) int {
	n := 0
	for _, evt := range b.snapshot() {
		if evt.Type != eventType {
			continue
		}
		switch p := evt.Payload.(type) {
		case roundEventPayload:
			if p.RoundID == roundID {
				n++
			}
		case timerUpdatePayload:
			if p.RoundID == roundID {
				n++
			}
		}
	}
	return n
}

func awaitCount(t *testing.T, get func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected count %d, got %d", want, get())
}

// step advances the fake clock one tick at a time so the countdown
// goroutine observes every beat instead of one coalesced jump.
func step(clock *clockwork.FakeClock, total time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += defaultTickInterval {
		clock.Advance(defaultTickInterval)
		time.Sleep(time.Millisecond)
	}
}

func TestTimerExpiresExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingBroadcaster{}

	var mu sync.Mutex
	var expiries []uuid.UUID
	engine := NewTimerEngine(clock, sink, func(sessionID, roundID uuid.UUID) {
		mu.Lock()
		expiries = append(expiries, roundID)
		mu.Unlock()
	})

	sessionID := uuid.New()
	roundID := uuid.New()
	engine.Start(sessionID, roundID, 2*time.Second)
	clock.BlockUntil(1)

	step(clock, 2*time.Second+defaultTickInterval)
	awaitCount(t, func() int { return sink.countByRound(EventTimerExpired, roundID) }, 1)

	mu.Lock()
	fired := len(expiries)
	mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected exactly one expiry callback, got %d", fired)
	}

	// Any number of further ticks changes nothing.
	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := sink.countByRound(EventTimerExpired, roundID); got != 1 {
		t.Fatalf("expected single terminal broadcast, got %d", got)
	}
}

func TestTimerBroadcastsOnSecondChange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingBroadcaster{}
	engine := NewTimerEngine(clock, sink, nil)

	sessionID := uuid.New()
	roundID := uuid.New()
	engine.Start(sessionID, roundID, 3*time.Second)
	clock.BlockUntil(1)

	// One second in, every tick still rounds down to remaining=2: exactly
	// one update despite ten ticks.
	step(clock, time.Second)
	awaitCount(t, func() int { return sink.countByRound(EventTimerUpdate, roundID) }, 1)

	// Crossing into the next whole second produces the next update.
	step(clock, time.Second)
	awaitCount(t, func() int { return sink.countByRound(EventTimerUpdate, roundID) }, 2)

	updates := 0
	var lastRemaining = -1
	for _, evt := range sink.snapshot() {
		p, ok := evt.Payload.(timerUpdatePayload)
		if !ok || p.RoundID != roundID {
			continue
		}
		if p.RemainingSeconds == lastRemaining {
			t.Fatalf("duplicate remaining=%d broadcast", p.RemainingSeconds)
		}
		lastRemaining = p.RemainingSeconds
		updates++
	}
	if updates == 0 {
		t.Fatalf("expected at least one timer update")
	}

	engine.Cancel(sessionID)
}

func TestTimerSupersededCountdownGoesSilent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingBroadcaster{}
	engine := NewTimerEngine(clock, sink, nil)

	sessionID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	engine.Start(sessionID, first, time.Second)
	clock.BlockUntil(1)
	engine.Start(sessionID, second, 2*time.Second)

	// Once Start returns the old countdown is cancelled; nothing more from
	// it may reach clients no matter how far the clock moves.
	before := sink.countByRound(EventTimerUpdate, first)
	step(clock, 3*time.Second)
	awaitCount(t, func() int { return sink.countByRound(EventTimerExpired, second) }, 1)

	if got := sink.countByRound(EventTimerUpdate, first); got != before {
		t.Fatalf("superseded countdown kept ticking: %d -> %d", before, got)
	}
	if got := sink.countByRound(EventTimerExpired, first); got != 0 {
		t.Fatalf("superseded countdown must not expire, got %d broadcasts", got)
	}
}

func TestTimerCancelRoundScoped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingBroadcaster{}
	engine := NewTimerEngine(clock, sink, nil)

	sessionID := uuid.New()
	current := uuid.New()
	engine.Start(sessionID, current, time.Second)
	clock.BlockUntil(1)

	// Cancelling a stale round id leaves the live countdown alone.
	engine.CancelRound(sessionID, uuid.New())
	step(clock, time.Second+defaultTickInterval)
	awaitCount(t, func() int { return sink.countByRound(EventTimerExpired, current) }, 1)
}

func TestTimerCancelSuppressesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingBroadcaster{}
	engine := NewTimerEngine(clock, sink, func(sessionID, roundID uuid.UUID) {
		t.Errorf("expiry must not fire after cancel")
	})

	sessionID := uuid.New()
	roundID := uuid.New()
	engine.Start(sessionID, roundID, time.Second)
	clock.BlockUntil(1)

	engine.CancelRound(sessionID, roundID)
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	if got := sink.countByRound(EventTimerExpired, roundID); got != 0 {
		t.Fatalf("cancelled countdown broadcast expiry %d times", got)
	}
}
