// Package storetest provides a conformance test suite for store.Store
// backends. Any backend can call TestStore(t, newStore) to verify it
// implements the interface correctly.
package storetest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/megolm"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store"
)

// TestStore runs the full conformance suite against a store backend.
// newStore must return a fresh, opened Store each time it is called.
func TestStore(t *testing.T, newStore func() store.Store) {
	t.Run("Account", func(t *testing.T) { testAccount(t, newStore) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore) })
	t.Run("InboundGroupSessions", func(t *testing.T) { testInboundGroupSessions(t, newStore) })
	t.Run("DeviceKeys", func(t *testing.T) { testDeviceKeys(t, newStore) })
}

func testAccount(t *testing.T, newStore func() store.Store) {
	s := newStore()
	t.Cleanup(func() { s.Close() })

	if _, err := s.LoadAccount(); err != store.ErrNoAccount {
		t.Fatalf("LoadAccount before save: got %v, want ErrNoAccount", err)
	}

	acct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := acct.GenerateOneTimeKeys(3); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveAccount(acct); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	restored, err := s.LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if restored.Ed25519Public() != acct.Ed25519Public() {
		t.Fatalf("Ed25519Public mismatch after reload")
	}
	if restored.Curve25519Public() != acct.Curve25519Public() {
		t.Fatalf("Curve25519Public mismatch after reload")
	}
}

func testSessions(t *testing.T, newStore func() store.Store) {
	s := newStore()
	t.Cleanup(func() { s.Close() })

	alice, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bobKeys, err := bob.GenerateOneTimeKeys(1)
	if err != nil {
		t.Fatal(err)
	}
	bob.MarkKeysAsPublished()

	session, _, err := alice.CreateOutboundSession(bob.CurveKey.PublicKey().Bytes(), decodeKey(t, bobKeys[0].ID), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	curveKey := bob.Curve25519Public()
	if err := s.SaveSession(curveKey, session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	sessions, ok := loaded[curveKey]
	if !ok || len(sessions) != 1 {
		t.Fatalf("LoadSessions: got %v for %s, want 1 session", loaded[curveKey], curveKey)
	}
	if sessions[0].SessionID != session.SessionID {
		t.Fatalf("session ID mismatch after reload: got %s, want %s", sessions[0].SessionID, session.SessionID)
	}
}

func testInboundGroupSessions(t *testing.T, newStore func() store.Store) {
	s := newStore()
	t.Cleanup(func() { s.Close() })

	out, err := megolm.NewOutboundGroupSession("!room:example.org", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	in, err := megolm.NewInboundGroupSession("!room:example.org", "sender-curve", "sender-ed25519", out.SessionID, out.SessionKey())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SaveInboundGroupSession(in); err != nil {
		t.Fatalf("SaveInboundGroupSession: %v", err)
	}

	loaded, err := s.LoadInboundGroupSessions()
	if err != nil {
		t.Fatalf("LoadInboundGroupSessions: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d inbound group sessions, want 1", len(loaded))
	}
	if loaded[0].SessionID != in.SessionID || loaded[0].RoomID != in.RoomID {
		t.Fatalf("reloaded session mismatch: %+v", loaded[0])
	}
}

func testDeviceKeys(t *testing.T, newStore func() store.Store) {
	s := newStore()
	t.Cleanup(func() { s.Close() })

	devices := []device.Device{
		{
			UserID:     identity.MustParseUserID("@alice:example.org"),
			DeviceID:   identity.DeviceID("DEVICE1"),
			Ed25519:    "edkey",
			Curve25519: "curvekey",
		},
	}
	if err := s.SaveDeviceKeys(devices); err != nil {
		t.Fatalf("SaveDeviceKeys: %v", err)
	}

	loaded, err := s.LoadDeviceKeys()
	if err != nil {
		t.Fatalf("LoadDeviceKeys: %v", err)
	}
	if len(loaded) != 1 || loaded[0].DeviceID != identity.DeviceID("DEVICE1") {
		t.Fatalf("got %+v, want one device DEVICE1", loaded)
	}
}

func decodeKey(t *testing.T, id string) []byte {
	t.Helper()
	raw, err := base64.RawStdEncoding.DecodeString(id)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}
