// Package store holds the in-memory session stores the encryption
// engine operates over, plus the persistence interface used to make
// their contents durable across restarts.
package store

import (
	"sort"
	"sync"

	"github.com/go-trix/e2ee/olmsession"
)

// SessionStore maps a remote device's curve25519 identity key to the
// ordered set of pairwise Olm sessions established with it. Within a
// curve25519 group, sessions are kept sorted by session ID ascending;
// the first is the "active" session used for new encryptions, while
// decryption may try any of them.
type SessionStore struct {
	mu      sync.RWMutex
	byCurve map[string][]*olmsession.Session
}

// NewSessionStore creates an empty pairwise session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{byCurve: make(map[string][]*olmsession.Session)}
}

// Add inserts session into curveKey's group, keeping the group sorted
// by session ID. It returns false without modifying the store if a
// session with the same ID is already present.
func (s *SessionStore) Add(curveKey string, session *olmsession.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.byCurve[curveKey]
	idx := sort.Search(len(sessions), func(i int) bool {
		return sessions[i].SessionID >= session.SessionID
	})
	if idx < len(sessions) && sessions[idx].SessionID == session.SessionID {
		return false
	}

	sessions = append(sessions, nil)
	copy(sessions[idx+1:], sessions[idx:])
	sessions[idx] = session
	s.byCurve[curveKey] = sessions
	return true
}

// Get returns the active (minimum session ID) session for curveKey,
// or false if there are none.
func (s *SessionStore) Get(curveKey string) (*olmsession.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := s.byCurve[curveKey]
	if len(sessions) == 0 {
		return nil, false
	}
	return sessions[0], true
}

// Sessions returns the full sorted session group for curveKey.
func (s *SessionStore) Sessions(curveKey string) []*olmsession.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := s.byCurve[curveKey]
	out := make([]*olmsession.Session, len(sessions))
	copy(out, sessions)
	return out
}

// Range calls fn once per curve25519 group with its sorted sessions,
// in unspecified curve order. Iteration stops early if fn returns
// false.
func (s *SessionStore) Range(fn func(curveKey string, sessions []*olmsession.Session) bool) {
	s.mu.RLock()
	snapshot := make(map[string][]*olmsession.Session, len(s.byCurve))
	for k, v := range s.byCurve {
		cp := make([]*olmsession.Session, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	s.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Load replaces the store's contents with sessions grouped by curve
// key, as produced by persistence on startup. Each group is sorted.
func (s *SessionStore) Load(byCurve map[string][]*olmsession.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCurve = make(map[string][]*olmsession.Session, len(byCurve))
	for curve, sessions := range byCurve {
		cp := make([]*olmsession.Session, len(sessions))
		copy(cp, sessions)
		sort.Slice(cp, func(i, j int) bool { return cp[i].SessionID < cp[j].SessionID })
		s.byCurve[curve] = cp
	}
}
