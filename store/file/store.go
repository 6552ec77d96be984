// Package file provides a file-backed store.Store implementation: one
// opaque row file per local account, written with scoped atomic
// replacement so a crash mid-write never leaves a torn file.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/megolm"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store"
)

// row is the on-disk JSON shape of the account's file. The account and
// inbound group session blobs are the output of their type's own
// passphrase-encrypted Pickle. Pairwise session blobs are the output of
// Session.Pickle, which does not encrypt, so pairwise ratchet key
// material is stored in plaintext.
type row struct {
	Account         []byte                   `json:"account,omitempty"`
	Sessions        map[string][][]byte      `json:"sessions,omitempty"`
	InboundSessions []inboundGroupSessionRow `json:"inbound_group_sessions,omitempty"`
	DeviceKeys      []device.Device          `json:"device_keys,omitempty"`
}

type inboundGroupSessionRow struct {
	RoomID           string `json:"room_id"`
	SenderCurve25519 string `json:"sender_curve25519"`
	Pickle           []byte `json:"pickle"`
}

// Store is a store.Store backed by a single file named
// "<user_id>_<device_id>.db" inside a directory. The account and
// inbound group sessions in it are encrypted at rest under a pickle
// passphrase; pairwise sessions are not.
type Store struct {
	mu        sync.Mutex
	path      string
	pickleKey string
}

// New opens (without yet reading) a file store identified by
// (userID, deviceID, dir, pickleKey), per the spec's store identity.
func New(userID identity.UserID, deviceID identity.DeviceID, dir, pickleKey string) *Store {
	filename := fmt.Sprintf("%s_%s.db", userID.String(), deviceID.String())
	return &Store{path: filepath.Join(dir, filename), pickleKey: pickleKey}
}

func (s *Store) load() (*row, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &row{Sessions: make(map[string][][]byte)}, nil
	}
	if err != nil {
		return nil, err
	}
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Sessions == nil {
		r.Sessions = make(map[string][][]byte)
	}
	return &r, nil
}

// persist writes r to disk via scoped atomic replacement: a temp file
// in the same directory is written, flushed, and renamed over the
// target, so a crash mid-write leaves the prior file intact.
func (s *Store) persist(r *row) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *Store) SaveAccount(acct *olmsession.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	pickled, err := acct.Pickle(s.pickleKey)
	if err != nil {
		return err
	}
	r.Account = pickled
	return s.persist(r)
}

func (s *Store) LoadAccount() (*olmsession.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return nil, err
	}
	if r.Account == nil {
		return nil, store.ErrNoAccount
	}
	return olmsession.UnpickleAccount(s.pickleKey, r.Account)
}

func (s *Store) SaveSession(curve25519 string, session *olmsession.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	pickled, err := session.Pickle()
	if err != nil {
		return err
	}
	for i, p := range r.Sessions[curve25519] {
		existing, err := olmsession.UnpickleSession(p)
		if err == nil && existing.SessionID == session.SessionID {
			r.Sessions[curve25519][i] = pickled
			return s.persist(r)
		}
	}
	r.Sessions[curve25519] = append(r.Sessions[curve25519], pickled)
	return s.persist(r)
}

func (s *Store) LoadSessions() (map[string][]*olmsession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*olmsession.Session, len(r.Sessions))
	for curve, pickles := range r.Sessions {
		sessions := make([]*olmsession.Session, 0, len(pickles))
		for _, p := range pickles {
			session, err := olmsession.UnpickleSession(p)
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, session)
		}
		out[curve] = sessions
	}
	return out, nil
}

func (s *Store) SaveInboundGroupSession(session *megolm.InboundGroupSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	pickled, err := session.Pickle(s.pickleKey)
	if err != nil {
		return err
	}
	for i, existing := range r.InboundSessions {
		if existing.RoomID == session.RoomID && existing.SenderCurve25519 == session.SenderCurve25519 {
			r.InboundSessions[i].Pickle = pickled
			return s.persist(r)
		}
	}
	r.InboundSessions = append(r.InboundSessions, inboundGroupSessionRow{
		RoomID:           session.RoomID,
		SenderCurve25519: session.SenderCurve25519,
		Pickle:           pickled,
	})
	return s.persist(r)
}

func (s *Store) LoadInboundGroupSessions() ([]*megolm.InboundGroupSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*megolm.InboundGroupSession, 0, len(r.InboundSessions))
	for _, ir := range r.InboundSessions {
		session, err := megolm.UnpickleInboundGroupSession(s.pickleKey, ir.Pickle)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *Store) SaveDeviceKeys(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	r.DeviceKeys = devices
	return s.persist(r)
}

func (s *Store) LoadDeviceKeys() ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return nil, err
	}
	return r.DeviceKeys, nil
}

func (s *Store) Close() error { return nil }
