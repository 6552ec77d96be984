package store

import (
	"sync"

	"github.com/go-trix/e2ee/megolm"
)

// groupKey identifies an inbound group session by the triple the spec
// requires to be unique: room, sender curve25519, session ID.
type groupKey struct {
	room  string
	curve string
	id    string
}

// GroupSessionStore maps (room_id, sender_curve25519, session_id) to
// inbound Megolm sessions.
type GroupSessionStore struct {
	mu       sync.RWMutex
	sessions map[groupKey]*megolm.InboundGroupSession
}

// NewGroupSessionStore creates an empty inbound group session store.
func NewGroupSessionStore() *GroupSessionStore {
	return &GroupSessionStore{sessions: make(map[groupKey]*megolm.InboundGroupSession)}
}

// Add inserts session under (roomID, curveKey, session.SessionID). It
// returns false without modifying the store if that triple is already
// present — the existing session remains authoritative.
func (s *GroupSessionStore) Add(session *megolm.InboundGroupSession, roomID, curveKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupKey{room: roomID, curve: curveKey, id: session.SessionID}
	if _, ok := s.sessions[key]; ok {
		return false
	}
	s.sessions[key] = session
	return true
}

// Get returns the inbound session for the given triple, if any.
func (s *GroupSessionStore) Get(roomID, curveKey, sessionID string) (*megolm.InboundGroupSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[groupKey{room: roomID, curve: curveKey, id: sessionID}]
	return session, ok
}

// Contains reports whether the given triple already has a session.
func (s *GroupSessionStore) Contains(roomID, curveKey, sessionID string) bool {
	_, ok := s.Get(roomID, curveKey, sessionID)
	return ok
}

// All returns every stored inbound session, for persistence sweeps.
func (s *GroupSessionStore) All() []*megolm.InboundGroupSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*megolm.InboundGroupSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// OutboundGroupSessionStore holds the single active outbound Megolm
// session per room, per the spec's "a room has at most one active
// outbound group session" invariant.
type OutboundGroupSessionStore struct {
	mu     sync.RWMutex
	byRoom map[string]*megolm.OutboundGroupSession
}

// NewOutboundGroupSessionStore creates an empty outbound session
// store.
func NewOutboundGroupSessionStore() *OutboundGroupSessionStore {
	return &OutboundGroupSessionStore{byRoom: make(map[string]*megolm.OutboundGroupSession)}
}

// Get returns the current outbound session for roomID, if any.
func (s *OutboundGroupSessionStore) Get(roomID string) (*megolm.OutboundGroupSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byRoom[roomID]
	return session, ok
}

// Set installs session as the active outbound session for its room,
// replacing any prior one.
func (s *OutboundGroupSessionStore) Set(session *megolm.OutboundGroupSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoom[session.RoomID] = session
}
