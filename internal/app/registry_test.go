package app

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(evt Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRegistryBroadcastScoping(t *testing.T) {
	r := NewRegistry()
	sessA := uuid.New()
	sessB := uuid.New()

	player := &fakeConn{id: "player"}
	admin := &fakeConn{id: "admin"}
	other := &fakeConn{id: "other"}

	r.Join(player, sessA)
	r.JoinAsAdmin(admin, sessA)
	r.Join(other, sessB)

	r.ToSession(sessA, Event{Type: EventSessionUpdated})
	if player.received() != 1 || admin.received() != 1 {
		t.Fatalf("expected both members of session A to receive the event")
	}
	if other.received() != 0 {
		t.Fatalf("session B member must not receive session A traffic")
	}

	r.ToAdmins(sessA, Event{Type: EventAnswerSubmitted})
	if admin.received() != 2 {
		t.Fatalf("expected admin to receive admin-scoped event")
	}
	if player.received() != 1 {
		t.Fatalf("player must not receive admin-scoped events")
	}
}

func TestRegistryDisconnectReportsOwnSessions(t *testing.T) {
	r := NewRegistry()
	sessA := uuid.New()
	sessB := uuid.New()

	conn := &fakeConn{id: "conn"}
	other := &fakeConn{id: "other"}
	r.Join(conn, sessA)
	r.Join(conn, sessB)
	r.Join(other, sessB)

	affected := r.Disconnect(conn)
	if len(affected) != 2 {
		t.Fatalf("expected both of the connection's sessions, got %v", affected)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range affected {
		seen[id] = true
	}
	if !seen[sessA] || !seen[sessB] {
		t.Fatalf("affected sessions mismatch: %v", affected)
	}

	// The departed connection receives nothing further.
	r.ToSession(sessA, Event{Type: EventSessionUpdated})
	if conn.received() != 0 {
		t.Fatalf("disconnected conn still receives events")
	}

	// The other member of session B is untouched.
	if r.Connections(sessB) != 1 {
		t.Fatalf("expected one remaining connection in session B, got %d", r.Connections(sessB))
	}

	if got := r.Disconnect(conn); len(got) != 0 {
		t.Fatalf("second disconnect must be a no-op, got %v", got)
	}
}

func TestRegistryLeaveSingleSession(t *testing.T) {
	r := NewRegistry()
	sessA := uuid.New()
	sessB := uuid.New()

	conn := &fakeConn{id: "conn"}
	r.Join(conn, sessA)
	r.Join(conn, sessB)

	r.Leave(conn, sessA)
	r.ToSession(sessA, Event{Type: EventSessionUpdated})
	r.ToSession(sessB, Event{Type: EventSessionUpdated})
	if conn.received() != 1 {
		t.Fatalf("expected only session B traffic after leaving A, got %d events", conn.received())
	}

	ids := r.SessionIDs()
	if len(ids) != 1 || ids[0] != sessB {
		t.Fatalf("expected only session B registered, got %v", ids)
	}
}
