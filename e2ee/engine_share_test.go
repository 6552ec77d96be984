package e2ee

import (
	"testing"
	"time"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/olmsession"
)

// registerDevice adds a remote device straight into the engine's
// registry, bypassing HandleKeysQuery, for tests that only care about
// the sharing/trust logic downstream of key distribution.
func registerDevice(t *testing.T, e *Engine, acct *olmsession.Account, userID, deviceID string) device.Device {
	t.Helper()
	d := device.Device{
		UserID:     identity.MustParseUserID(userID),
		DeviceID:   identity.DeviceID(deviceID),
		Ed25519:    acct.Ed25519Public(),
		Curve25519: acct.Curve25519Public(),
	}
	if !e.Devices().Add(d) {
		t.Fatalf("failed to register device %s/%s", userID, deviceID)
	}
	return d
}

// TestShareGroupSessionTrustGating: Alice shares a room key with Bob
// (verified) and Malory (trust unset). The whole share must fail with
// an OlmTrustError naming Malory, and Bob must not be marked shared.
func TestShareGroupSessionTrustGating(t *testing.T) {
	now := time.Now()
	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")

	bobAcct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	maloryAcct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bobDevice := registerDevice(t, alice, bobAcct, "@bob:example.org", "BOBDEVICE")
	registerDevice(t, alice, maloryAcct, "@malory:example.org", "MALORYDEVICE")

	if err := alice.VerifyDevice(bobDevice.UserID, bobDevice.DeviceID); err != nil {
		t.Fatal(err)
	}

	_, err = alice.ShareGroupSession("!room:example.org", []string{"@bob:example.org", "@malory:example.org"}, now)
	trustErr, ok := err.(*OlmTrustError)
	if !ok {
		t.Fatalf("err = %v (%T), want *OlmTrustError", err, err)
	}
	if len(trustErr.Devices) != 1 || trustErr.Devices[0].UserID.String() != "@malory:example.org" {
		t.Fatalf("unexpected untrusted device list: %+v", trustErr.Devices)
	}

	// Spec §7: a rejected share must leave no state mutated. Since this
	// room had no outbound session before the call, none may exist now.
	if _, ok := alice.outbound.Get("!room:example.org"); ok {
		t.Fatalf("no outbound session should be created when the share is rejected")
	}
}

// TestShareGroupSessionMissingSessionThenSucceeds covers the second
// gate: once trust is settled, a device with no pairwise session
// blocks the share until CreateSession establishes one.
func TestShareGroupSessionMissingSessionThenSucceeds(t *testing.T) {
	now := time.Now()
	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")

	bobAcct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bobKeys, err := bobAcct.GenerateOneTimeKeys(1)
	if err != nil {
		t.Fatal(err)
	}
	bobAcct.MarkKeysAsPublished()
	bobDevice := registerDevice(t, alice, bobAcct, "@bob:example.org", "BOBDEVICE")
	if err := alice.VerifyDevice(bobDevice.UserID, bobDevice.DeviceID); err != nil {
		t.Fatal(err)
	}

	_, err = alice.ShareGroupSession("!room:example.org", []string{"@bob:example.org"}, now)
	encErr, ok := err.(*EncryptionError)
	if !ok {
		t.Fatalf("err = %v (%T), want *EncryptionError", err, err)
	}
	if encErr.Reason != "missing sessions" || len(encErr.Devices) != 1 {
		t.Fatalf("unexpected encryption error: %+v", encErr)
	}
	if _, ok := alice.outbound.Get("!room:example.org"); ok {
		t.Fatalf("no outbound session should be created when the share is rejected")
	}

	if _, err := alice.CreateSession(bobAcct.Curve25519Public(), OneTimeKeyEntry{KeyID: bobKeys[0].ID, Key: bobKeys[0].ID}, now); err != nil {
		t.Fatal(err)
	}

	payload, err := alice.ShareGroupSession("!room:example.org", []string{"@bob:example.org"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := payload.Messages["@bob:example.org"]["BOBDEVICE"]; !ok {
		t.Fatalf("expected a to-device message for bob, got %+v", payload.Messages)
	}

	out, _ := alice.outbound.Get("!room:example.org")
	if !out.HasShared("@bob:example.org", "BOBDEVICE") {
		t.Fatalf("bob should be marked shared after a successful share")
	}

	// Re-sharing is idempotent: bob is already in SharedWith, so the
	// payload this time carries no messages for him.
	payload2, err := alice.ShareGroupSession("!room:example.org", []string{"@bob:example.org"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := payload2.Messages["@bob:example.org"]; ok {
		t.Fatalf("expected no re-share for an already shared device, got %+v", payload2.Messages)
	}
}
