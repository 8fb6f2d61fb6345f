package app

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the transport-provided connection abstraction. Send must not
// block: implementations enqueue onto a buffered channel and drop when the
// client cannot keep up.
type Conn interface {
	ID() string
	Send(evt Event)
}

// Broadcaster fans events out to a session's groups. The Registry is the
// production implementation; tests substitute capture fakes.
type Broadcaster interface {
	ToSession(sessionID uuid.UUID, evt Event)
	ToAdmins(sessionID uuid.UUID, evt Event)
}

// Registry maps live connections to session broadcast groups. Each session
// has a player group and an admin sub-group used for answer-review events
// players must not see. A reverse conn->sessions index lets disconnects
// touch only the groups the connection actually belonged to instead of
// scanning every session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*group
	byConn   map[string]map[uuid.UUID]struct{}
}

type group struct {
	members map[string]Conn
	admins  map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*group),
		byConn:   make(map[string]map[uuid.UUID]struct{}),
	}
}

// Join adds the connection to the session's broadcast group.
func (r *Registry) Join(conn Conn, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groupLocked(sessionID)
	g.members[conn.ID()] = conn
	r.indexLocked(conn, sessionID)
}

// JoinAsAdmin adds the connection to both the session group and the
// admin-only sub-group.
func (r *Registry) JoinAsAdmin(conn Conn, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groupLocked(sessionID)
	g.members[conn.ID()] = conn
	g.admins[conn.ID()] = conn
	r.indexLocked(conn, sessionID)
}

// Leave removes the connection from one session's groups.
func (r *Registry) Leave(conn Conn, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), sessionID)
}

// Disconnect removes the connection from every group it belonged to and
// returns the affected session ids so the caller can refresh exactly those.
func (r *Registry) Disconnect(conn Conn) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byConn[conn.ID()]
	affected := make([]uuid.UUID, 0, len(ids))
	for sessionID := range ids {
		affected = append(affected, sessionID)
	}
	for _, sessionID := range affected {
		r.leaveLocked(conn.ID(), sessionID)
	}
	return affected
}

// SessionIDs returns every session with at least one live connection. Only
// used by the optional broad refresh-on-disconnect mode.
func (r *Registry) SessionIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Connections reports how many live connections a session group has.
func (r *Registry) Connections(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(g.members)
}

// ToSession sends the event to every connection in the session group.
func (r *Registry) ToSession(sessionID uuid.UUID, evt Event) {
	for _, conn := range r.snapshot(sessionID, false) {
		conn.Send(evt)
	}
}

// ToAdmins sends the event to the session's admin sub-group only.
func (r *Registry) ToAdmins(sessionID uuid.UUID, evt Event) {
	for _, conn := range r.snapshot(sessionID, true) {
		conn.Send(evt)
	}
}

// snapshot copies the membership list so sends happen outside the lock.
func (r *Registry) snapshot(sessionID uuid.UUID, admins bool) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	src := g.members
	if admins {
		src = g.admins
	}
	conns := make([]Conn, 0, len(src))
	for _, c := range src {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) groupLocked(sessionID uuid.UUID) *group {
	g, ok := r.sessions[sessionID]
	if !ok {
		g = &group{members: make(map[string]Conn), admins: make(map[string]Conn)}
		r.sessions[sessionID] = g
	}
	return g
}

func (r *Registry) indexLocked(conn Conn, sessionID uuid.UUID) {
	ids, ok := r.byConn[conn.ID()]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		r.byConn[conn.ID()] = ids
	}
	ids[sessionID] = struct{}{}
}

func (r *Registry) leaveLocked(connID string, sessionID uuid.UUID) {
	if g, ok := r.sessions[sessionID]; ok {
		delete(g.members, connID)
		delete(g.admins, connID)
		if len(g.members) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	if ids, ok := r.byConn[connID]; ok {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(r.byConn, connID)
		}
	}
}
