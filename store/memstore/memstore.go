// Package memstore is an in-memory store.Store implementation. It is
// useful for tests and for drivers that only need crash-unsafe,
// process-lifetime persistence (a bridge run purely from a keys-backup
// restore, for instance).
package memstore

import (
	"sync"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/megolm"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store"
)

type groupKey struct {
	roomID           string
	senderCurve25519 string
	sessionID        string
}

// Store is an in-memory store.Store implementation.
type Store struct {
	mu sync.RWMutex

	account *olmsession.Account
	hasAcct bool

	sessions map[string][]*olmsession.Session
	inbound  map[groupKey]*megolm.InboundGroupSession
	devices  []device.Device
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string][]*olmsession.Session),
		inbound:  make(map[groupKey]*megolm.InboundGroupSession),
	}
}

func (s *Store) SaveAccount(acct *olmsession.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = acct
	s.hasAcct = true
	return nil
}

func (s *Store) LoadAccount() (*olmsession.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasAcct {
		return nil, store.ErrNoAccount
	}
	return s.account, nil
}

func (s *Store) SaveSession(curve25519 string, session *olmsession.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.sessions[curve25519]
	for i, sess := range existing {
		if sess.SessionID == session.SessionID {
			existing[i] = session
			return nil
		}
	}
	s.sessions[curve25519] = append(existing, session)
	return nil
}

func (s *Store) LoadSessions() (map[string][]*olmsession.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]*olmsession.Session, len(s.sessions))
	for k, v := range s.sessions {
		cp := make([]*olmsession.Session, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}

func (s *Store) SaveInboundGroupSession(session *megolm.InboundGroupSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound[groupKey{session.RoomID, session.SenderCurve25519, session.SessionID}] = session
	return nil
}

func (s *Store) LoadInboundGroupSessions() ([]*megolm.InboundGroupSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*megolm.InboundGroupSession, 0, len(s.inbound))
	for _, v := range s.inbound {
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) SaveDeviceKeys(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]device.Device, len(devices))
	copy(cp, devices)
	s.devices = cp
	return nil
}

func (s *Store) LoadDeviceKeys() ([]device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]device.Device, len(s.devices))
	copy(cp, s.devices)
	return cp, nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
