package e2ee

import (
	"testing"
	"time"

	"github.com/go-trix/e2ee/identity"
)

// TestHandleSyncDispatchesRoomKey covers the sync-consumer path of
// spec §6: a to-device event carrying an Olm-wrapped m.room_key is
// decrypted and dispatched without the driver manually chaining
// DecryptPairwise into HandleRoomKeyEvent itself.
func TestHandleSyncDispatchesRoomKey(t *testing.T) {
	now := time.Now()
	roomID := "!room:example.org"

	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")
	bob := newTestEngine(t, "@bob:example.org", "BOBDEVICE")

	aliceEntry := buildDeviceEntry(t, alice.account, "@alice:example.org", "ALICEDEVICE")
	bobEntry := buildDeviceEntry(t, bob.account, "@bob:example.org", "BOBDEVICE")

	if _, err := alice.HandleKeysQuery(KeysQueryResponse{
		DeviceKeys: map[string]map[string]DeviceKeysEntry{"@bob:example.org": {"BOBDEVICE": bobEntry}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.HandleKeysQuery(KeysQueryResponse{
		DeviceKeys: map[string]map[string]DeviceKeysEntry{"@alice:example.org": {"ALICEDEVICE": aliceEntry}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := alice.VerifyDevice(identity.MustParseUserID("@bob:example.org"), identity.DeviceID("BOBDEVICE")); err != nil {
		t.Fatal(err)
	}

	bobKeys, err := bob.account.GenerateOneTimeKeys(1)
	if err != nil {
		t.Fatal(err)
	}
	bob.account.MarkKeysAsPublished()

	if _, err := alice.CreateSession(bob.account.Curve25519Public(), OneTimeKeyEntry{KeyID: bobKeys[0].ID, Key: bobKeys[0].ID}, now); err != nil {
		t.Fatal(err)
	}

	payload, err := alice.ShareGroupSession(roomID, []string{"@bob:example.org"}, now)
	if err != nil {
		t.Fatal(err)
	}
	toBob := payload.Messages["@bob:example.org"]["BOBDEVICE"]
	part := toBob.Ciphertext[alice.account.Curve25519Public()]

	sync := SyncResponse{
		ToDeviceEvents: []ToDeviceEvent{
			{
				Sender: "@alice:example.org",
				Type:   "m.room.encrypted",
				Content: map[string]interface{}{
					"algorithm":  AlgorithmOlmV1,
					"sender_key": alice.account.Curve25519Public(),
					"ciphertext": map[string]interface{}{
						alice.account.Curve25519Public(): map[string]interface{}{
							"type": float64(part.Type),
							"body": part.Body,
						},
					},
				},
			},
		},
	}

	result := bob.HandleSync(sync, now)
	if len(result.Rejected) != 0 {
		t.Fatalf("unexpected rejected events: %v", result.Rejected)
	}

	plaintext := []byte(`{"msgtype":"m.text","body":"hello bob"}`)
	env, err := alice.EncryptGroupMessage(roomID, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := bob.DecryptGroupMessage(roomID, env)
	if err != nil {
		t.Fatal(err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

// TestHandleSyncIgnoresUnknownToDeviceEvents ensures a to-device event
// of a type or algorithm this engine doesn't handle is skipped rather
// than surfaced as a rejection: a driver forwards every entry in
// to_device.events, most of which the engine has no opinion about.
func TestHandleSyncIgnoresUnknownToDeviceEvents(t *testing.T) {
	bob := newTestEngine(t, "@bob:example.org", "BOBDEVICE")

	sync := SyncResponse{
		ToDeviceEvents: []ToDeviceEvent{
			{Sender: "@alice:example.org", Type: "m.key.verification.request", Content: map[string]interface{}{}},
			{
				Sender: "@alice:example.org",
				Type:   "m.room.encrypted",
				Content: map[string]interface{}{
					"algorithm":  "m.megolm.v1.aes-sha2",
					"sender_key": "irrelevant",
					"ciphertext": map[string]interface{}{},
				},
			},
		},
	}

	result := bob.HandleSync(sync, time.Now())
	if len(result.Rejected) != 0 {
		t.Fatalf("unexpected rejected events: %v", result.Rejected)
	}
}

// TestHandleSyncDrivesReplenishment checks that device_one_time_keys_count
// overrides the local shared-key fallback once a sync has been
// processed, per spec §4.5's max - shared formula driven by the
// server's count.
func TestHandleSyncDrivesReplenishment(t *testing.T) {
	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")
	alice.cfg.MaxOneTimeKeys = 50

	if alice.ShouldReplenishOneTimeKeys() {
		t.Fatalf("a fresh account with no shared keys should not need replenishment yet")
	}

	alice.HandleSync(SyncResponse{DeviceOneTimeKeysCount: map[string]int{"signed_curve25519": 10}}, time.Now())
	if !alice.ShouldReplenishOneTimeKeys() {
		t.Fatalf("server-reported count of 10 (< 25) should trigger replenishment")
	}

	alice.HandleSync(SyncResponse{DeviceOneTimeKeysCount: map[string]int{"signed_curve25519": 40}}, time.Now())
	if alice.ShouldReplenishOneTimeKeys() {
		t.Fatalf("server-reported count of 40 (>= 25) should not trigger replenishment")
	}
}
