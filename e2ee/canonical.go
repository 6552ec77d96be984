package e2ee

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
)

// canonicalDeviceKeysJSON renders the canonical JSON form of a
// device-keys object for self-signature verification: map keys sorted
// lexicographically, no insignificant whitespace, and the
// "signatures"/"unsigned" fields stripped before signing, per the
// wire format's canonical-JSON rule.
//
// encoding/json already marshals map[string]interface{} with sorted
// keys and compact output, so stripping the two excluded fields before
// marshaling a generic map is sufficient; no third-party canonical-JSON
// encoder is needed.
func canonicalDeviceKeysJSON(raw map[string]interface{}) ([]byte, error) {
	stripped := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "signatures" || k == "unsigned" {
			continue
		}
		stripped[k] = v
	}
	return json.Marshal(stripped)
}

// verifySelfSignature checks the ed25519 signature a device makes
// over its own canonical device-keys JSON, under the key
// "ed25519:<device_id>" in signatures[user_id].
func verifySelfSignature(userID, deviceID, ed25519PublicKey string, raw map[string]interface{}, signatures map[string]map[string]string) bool {
	pub, err := base64.RawStdEncoding.DecodeString(ed25519PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	bySigner, ok := signatures[userID]
	if !ok {
		return false
	}
	sigB64, ok := bySigner["ed25519:"+deviceID]
	if !ok {
		return false
	}
	sig, err := base64.RawStdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	payload, err := canonicalDeviceKeysJSON(raw)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}
