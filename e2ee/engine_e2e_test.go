package e2ee

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-trix/e2ee/identity"
)

// TestEndToEndRoomKeyAndGroupMessage walks the full path from spec §8
// scenarios 5 and 6: Alice creates a pairwise session to Bob from one
// of his one-time keys, shares a room key over it, Bob absorbs the
// m.room_key event (creating an inbound session as a side effect of
// the pairwise decrypt), and then decrypts a Megolm room message Alice
// sends afterward.
func TestEndToEndRoomKeyAndGroupMessage(t *testing.T) {
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
	toBob, ok := payload.Messages["@bob:example.org"]["BOBDEVICE"]
	if !ok {
		t.Fatalf("no to-device message addressed to bob: %+v", payload.Messages)
	}
	part, ok := toBob.Ciphertext[alice.account.Curve25519Public()]
	if !ok {
		t.Fatalf("no ciphertext keyed by alice's sender curve25519: %+v", toBob.Ciphertext)
	}

	inner, err := bob.DecryptPairwise(alice.account.Curve25519Public(), part.Body, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := bob.HandleRoomKeyEvent(alice.account.Curve25519Public(), inner); err != nil {
		t.Fatal(err)
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
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}
