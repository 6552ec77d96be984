package store

import (
	"errors"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/megolm"
	"github.com/go-trix/e2ee/olmsession"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrNoAccount = errors.New("store: no account has been saved")
)

// Store is the persistence abstraction all mutable core state flows
// through. A single implementation instance is identified by
// (user_id, device_id, directory, pickle_key); every write is
// expected to be atomic, so a crash mid-write leaves either the
// pre- or post-write state, never a torn one.
type Store interface {
	// SaveAccount persists the local Olm account, pickled under the
	// store's configured passphrase.
	SaveAccount(acct *olmsession.Account) error
	// LoadAccount returns the previously saved account, or
	// ErrNoAccount if none has been saved yet.
	LoadAccount() (*olmsession.Account, error)

	// SaveSession persists one pairwise session under the remote
	// device's curve25519 identity key.
	SaveSession(curve25519 string, session *olmsession.Session) error
	// LoadSessions returns every persisted pairwise session, grouped
	// by curve25519 key.
	LoadSessions() (map[string][]*olmsession.Session, error)

	// SaveInboundGroupSession persists one inbound Megolm session.
	SaveInboundGroupSession(session *megolm.InboundGroupSession) error
	// LoadInboundGroupSessions returns every persisted inbound group
	// session.
	LoadInboundGroupSessions() ([]*megolm.InboundGroupSession, error)

	// SaveDeviceKeys persists the full set of known remote devices.
	SaveDeviceKeys(devices []device.Device) error
	// LoadDeviceKeys returns the previously saved device set.
	LoadDeviceKeys() ([]device.Device, error)

	// Close releases any resources (file handles, connections) held
	// by the store.
	Close() error
}
