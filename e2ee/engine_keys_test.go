package e2ee

import (
	"encoding/base64"
	"testing"

	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store/memstore"
)

// buildDeviceEntry signs a device-keys object under acct's identity
// key and returns the decoded response entry a driver would hand the
// engine after parsing a /keys/query response.
func buildDeviceEntry(t *testing.T, acct *olmsession.Account, userID, deviceID string) DeviceKeysEntry {
	t.Helper()
	keys := map[string]string{
		"ed25519:" + deviceID:    acct.Ed25519Public(),
		"curve25519:" + deviceID: acct.Curve25519Public(),
	}
	raw := map[string]interface{}{
		"user_id":    userID,
		"device_id":  deviceID,
		"algorithms": []interface{}{AlgorithmOlmV1, AlgorithmMegolmV1},
		"keys":       keys,
	}
	payload, err := canonicalDeviceKeysJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	sig := acct.Sign(payload)
	signatures := map[string]map[string]string{
		userID: {"ed25519:" + deviceID: base64.RawStdEncoding.EncodeToString(sig)},
	}
	raw["signatures"] = signatures

	return DeviceKeysEntry{
		UserID:     userID,
		DeviceID:   deviceID,
		Algorithms: []string{AlgorithmOlmV1, AlgorithmMegolmV1},
		Keys:       keys,
		Signatures: signatures,
		Raw:        raw,
	}
}

func newTestEngine(t *testing.T, userID, deviceID string) *Engine {
	t.Helper()
	acct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	trustStore := newTestTrustStore(t)
	persist := memstore.New()
	e := New(DefaultConfig(userID, deviceID), acct, trustStore, persist)
	if err := persist.SaveAccount(acct); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestHandleKeysQueryAbsorption(t *testing.T) {
	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")

	bobAcct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	entry := buildDeviceEntry(t, bobAcct, "@bob:example.org", "JLAFKJWSCS")

	resp := KeysQueryResponse{
		DeviceKeys: map[string]map[string]DeviceKeysEntry{
			"@bob:example.org": {"JLAFKJWSCS": entry},
		},
	}

	result, err := alice.HandleKeysQuery(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed {
		t.Fatalf("first absorption should report Changed = true")
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", result.Rejected)
	}

	d, ok := alice.Devices().Get(identity.MustParseUserID("@bob:example.org"), identity.DeviceID("JLAFKJWSCS"))
	if !ok {
		t.Fatalf("bob's device was not stored")
	}
	if d.Ed25519 != bobAcct.Ed25519Public() {
		t.Fatalf("ed25519 = %q, want %q", d.Ed25519, bobAcct.Ed25519Public())
	}

	// Scenario 3: a duplicate identical keys-query reports no change.
	result2, err := alice.HandleKeysQuery(resp)
	if err != nil {
		t.Fatal(err)
	}
	if result2.Changed {
		t.Fatalf("duplicate absorption should report Changed = false")
	}
}

func TestHandleKeysQueryRejectsBadSignature(t *testing.T) {
	alice := newTestEngine(t, "@alice:example.org", "ALICEDEVICE")

	bobAcct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	entry := buildDeviceEntry(t, bobAcct, "@bob:example.org", "JLAFKJWSCS")
	// Corrupt the recorded ed25519 key so the recomputed signature no
	// longer matches what was signed.
	entry.Keys["ed25519:JLAFKJWSCS"] = entry.Keys["curve25519:JLAFKJWSCS"]

	resp := KeysQueryResponse{
		DeviceKeys: map[string]map[string]DeviceKeysEntry{
			"@bob:example.org": {"JLAFKJWSCS": entry},
		},
	}
	result, err := alice.HandleKeysQuery(resp)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("expected one rejected entry, got %+v", result.Rejected)
	}
	if _, ok := alice.Devices().Get(identity.MustParseUserID("@bob:example.org"), identity.DeviceID("JLAFKJWSCS")); ok {
		t.Fatalf("device with bad signature must not be stored")
	}
}
