// Package e2ee implements the Matrix end-to-end encryption core: an
// Olm/Megolm engine built as a pure state machine over a persistence
// port, with no network transport and no global state (spec §5, §9).
// A driver owns the network and calls Engine methods with decoded
// responses and events; the engine returns values and mutates its
// stores, never performing I/O itself beyond those stores.
package e2ee

import (
	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/megolm"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store"
	"github.com/go-trix/e2ee/trust"
)

// Engine is the encryption core for one local account. It owns the
// Olm account, the device registry, the fingerprint trust store, the
// pairwise and group session stores, and the persistence port that
// backs all of them.
type Engine struct {
	cfg EngineConfig

	account  *olmsession.Account
	devices  *device.Registry
	trust    *trust.Store
	sessions *store.SessionStore
	inbound  *store.GroupSessionStore
	outbound *store.OutboundGroupSessionStore
	persist  store.Store

	// oneTimeKeysRemaining is the server's last-reported count of
	// unclaimed one-time keys (spec §6 "Sync"), set by HandleSync. Nil
	// until the first sync, in which case replenishment falls back to
	// the account's own shared-key accounting.
	oneTimeKeysRemaining *int
}

// New constructs an engine from an already-loaded account and a
// persistence port, with fresh in-memory stores. Use Open to load an
// existing account/session/device set from persist instead.
func New(cfg EngineConfig, account *olmsession.Account, trustStore *trust.Store, persist store.Store) *Engine {
	return &Engine{
		cfg:      cfg,
		account:  account,
		devices:  device.NewRegistry(),
		trust:    trustStore,
		sessions: store.NewSessionStore(),
		inbound:  store.NewGroupSessionStore(),
		outbound: store.NewOutboundGroupSessionStore(),
		persist:  persist,
	}
}

// Open loads an engine's full state from persist: the account (or a
// freshly generated one, saved immediately, if none exists yet),
// every pairwise session, every inbound group session, and the known
// device set.
func Open(cfg EngineConfig, trustStore *trust.Store, persist store.Store) (*Engine, error) {
	account, err := persist.LoadAccount()
	if err == store.ErrNoAccount {
		account, err = olmsession.NewAccount()
		if err != nil {
			return nil, err
		}
		if err := persist.SaveAccount(account); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	e := New(cfg, account, trustStore, persist)

	sessions, err := persist.LoadSessions()
	if err != nil {
		return nil, err
	}
	e.sessions.Load(sessions)

	groupSessions, err := persist.LoadInboundGroupSessions()
	if err != nil {
		return nil, err
	}
	for _, gs := range groupSessions {
		e.inbound.Add(gs, gs.RoomID, gs.SenderCurve25519)
	}

	devices, err := persist.LoadDeviceKeys()
	if err != nil {
		return nil, err
	}
	e.devices.Load(devices)

	return e, nil
}

// Account exposes the engine's local Olm account for callers that need
// to publish identity/one-time keys or inspect replenishment need.
func (e *Engine) Account() *olmsession.Account { return e.account }

// Devices exposes the device registry for read-only inspection.
func (e *Engine) Devices() *device.Registry { return e.devices }

// Config returns the engine's configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// localUserID and localDeviceID return the configured identity.
// localUserID parses, and so validates, the configured user ID on
// every call.
func (e *Engine) localUserID() (identity.UserID, error) {
	return identity.ParseUserID(e.cfg.UserID)
}

func (e *Engine) localDeviceID() identity.DeviceID {
	return identity.DeviceID(e.cfg.DeviceID)
}

// ShouldReplenishOneTimeKeys reports whether one_time_keys_remaining()
// has dropped below half of MaxOneTimeKeys, per spec §4.5. It prefers
// the server's last-reported count (HandleSync's
// device_one_time_keys_count) since that reflects what the server
// actually still holds; before the first sync it falls back to
// max - shared from the local account.
func (e *Engine) ShouldReplenishOneTimeKeys() bool {
	remaining := e.cfg.MaxOneTimeKeys - e.account.SharedOneTimeKeyCount()
	if e.oneTimeKeysRemaining != nil {
		remaining = *e.oneTimeKeysRemaining
	}
	return remaining < e.cfg.MaxOneTimeKeys/2
}
