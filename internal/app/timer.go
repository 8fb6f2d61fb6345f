package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// defaultTickInterval is how often a running countdown re-checks the wall
// clock and pushes the remaining whole seconds to clients.
const defaultTickInterval = 100 * time.Millisecond

// ExpireFunc is invoked exactly once when a countdown reaches its deadline
// without being cancelled or superseded.
type ExpireFunc func(sessionID, roundID uuid.UUID)

// TimerEngine runs at most one countdown per session. Each countdown stores
// one absolute deadline computed at start; remaining time is always derived
// from the wall clock against that deadline, never from a decrementing
// counter, so scheduling jitter cannot desynchronize observers.
type TimerEngine struct {
	clock     clockwork.Clock
	broadcast Broadcaster
	interval  time.Duration
	onExpire  ExpireFunc

	mu     sync.Mutex
	timers map[uuid.UUID]*countdown
}

type countdown struct {
	roundID  uuid.UUID
	deadline time.Time
	stop     chan struct{}

	// sendMu serializes sends with cancellation: once Cancel returns, no
	// further tick from this countdown can reach clients.
	sendMu    sync.Mutex
	cancelled bool
}

func NewTimerEngine(clock clockwork.Clock, broadcast Broadcaster, onExpire ExpireFunc) *TimerEngine {
	return &TimerEngine{
		clock:     clock,
		broadcast: broadcast,
		interval:  defaultTickInterval,
		onExpire:  onExpire,
		timers:    make(map[uuid.UUID]*countdown),
	}
}

// Start begins a countdown of the given duration for the session's round,
// superseding and silencing any countdown already running for that session.
func (e *TimerEngine) Start(sessionID, roundID uuid.UUID, duration time.Duration) {
	t := &countdown{
		roundID:  roundID,
		deadline: e.clock.Now().Add(duration),
		stop:     make(chan struct{}),
	}

	e.mu.Lock()
	if prev, ok := e.timers[sessionID]; ok {
		prev.cancel()
		log.Debug().Str("session_id", sessionID.String()).Str("round_id", prev.roundID.String()).
			Msg("superseded running round timer")
	}
	e.timers[sessionID] = t
	e.mu.Unlock()

	go e.run(sessionID, t)
}

// Cancel stops the session's countdown, if any, suppressing its pending
// expiry broadcast. Safe to call when no timer is running.
func (e *TimerEngine) Cancel(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[sessionID]; ok {
		t.cancel()
		delete(e.timers, sessionID)
	}
}

// CancelRound stops the countdown only if it belongs to the given round.
func (e *TimerEngine) CancelRound(sessionID, roundID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[sessionID]; ok && t.roundID == roundID {
		t.cancel()
		delete(e.timers, sessionID)
	}
}

func (e *TimerEngine) run(sessionID uuid.UUID, t *countdown) {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	lastSent := -1
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.Chan():
			remaining := t.deadline.Sub(e.clock.Now())
			if remaining <= 0 {
				if t.fire(func() {
					e.broadcast.ToSession(sessionID, Event{
						Type:    EventTimerExpired,
						Payload: roundEventPayload{RoundID: t.roundID},
					})
				}) {
					e.expire(sessionID, t)
				}
				return
			}
			secs := int(remaining / time.Second)
			if secs == lastSent {
				continue
			}
			if !t.send(func() {
				e.broadcast.ToSession(sessionID, Event{
					Type:    EventTimerUpdate,
					Payload: timerUpdatePayload{RoundID: t.roundID, RemainingSeconds: secs},
				})
			}) {
				return
			}
			lastSent = secs
		}
	}
}

// expire removes the fired countdown and hands the round to the expiry
// callback. The countdown marks itself cancelled first, so the terminal
// broadcast happens exactly once even if Cancel races the deadline.
func (e *TimerEngine) expire(sessionID uuid.UUID, t *countdown) {
	e.mu.Lock()
	if cur, ok := e.timers[sessionID]; ok && cur == t {
		delete(e.timers, sessionID)
	}
	e.mu.Unlock()

	if e.onExpire != nil {
		e.onExpire(sessionID, t.roundID)
	}
}

// send runs fn unless the countdown has been cancelled, and reports whether
// it ran.
func (t *countdown) send(fn func()) bool {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.cancelled {
		return false
	}
	fn()
	return true
}

// fire is the terminal send: it flips cancelled while holding the send lock
// so the expiry broadcast happens at most once and nothing follows it.
func (t *countdown) fire(fn func()) bool {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	fn()
	return true
}

func (t *countdown) cancel() {
	t.sendMu.Lock()
	if !t.cancelled {
		t.cancelled = true
		close(t.stop)
	}
	t.sendMu.Unlock()
}
