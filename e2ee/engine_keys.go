package e2ee

import (
	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
)

// HandleKeysQuery absorbs a /keys/query response: each device entry's
// ed25519 self-signature is verified over its canonical device-keys
// JSON before the device is added to the registry. A signature
// failure rejects only that device; the rest of the response is still
// processed (spec §7 "a single bad device never poisons a batch").
func (e *Engine) HandleKeysQuery(resp KeysQueryResponse) (KeysQueryResult, error) {
	result := KeysQueryResult{}

	for userIDStr, byDevice := range resp.DeviceKeys {
		userID, err := identity.ParseUserID(userIDStr)
		if err != nil {
			continue
		}
		for deviceIDStr, entry := range byDevice {
			ed25519Key, ok := entry.Keys["ed25519:"+deviceIDStr]
			if !ok {
				result.Rejected = append(result.Rejected, VerificationError{UserID: userIDStr, DeviceID: deviceIDStr})
				continue
			}
			curveKey, ok := entry.Keys["curve25519:"+deviceIDStr]
			if !ok {
				result.Rejected = append(result.Rejected, VerificationError{UserID: userIDStr, DeviceID: deviceIDStr})
				continue
			}
			if !verifySelfSignature(userIDStr, deviceIDStr, ed25519Key, entry.Raw, entry.Signatures) {
				result.Rejected = append(result.Rejected, VerificationError{UserID: userIDStr, DeviceID: deviceIDStr})
				continue
			}

			deviceID := identity.DeviceID(deviceIDStr)
			if existing, ok := e.devices.Get(userID, deviceID); ok && !existing.Deleted && existing.Ed25519 != ed25519Key {
				e.devices.MarkDeleted(userID, deviceID)
				result.Changed = true
			}

			added := e.devices.Add(device.Device{
				UserID:     userID,
				DeviceID:   deviceID,
				Ed25519:    ed25519Key,
				Curve25519: curveKey,
			})
			if added {
				result.Changed = true
			}
		}
	}

	if result.Changed {
		if err := e.persist.SaveDeviceKeys(e.devices.Snapshot()); err != nil {
			return result, err
		}
	}
	return result, nil
}

// HandleKeysClaim absorbs a /keys/claim response, verifying each
// one-time key's signature under the owning device's known ed25519
// identity key before returning a map of usable keys. Keys for
// unknown devices, or with a signature that fails to verify, are
// omitted rather than erroring the whole call (spec §7 partial
// failure semantics).
func (e *Engine) HandleKeysClaim(resp KeysClaimResponse) (map[string]map[string]OneTimeKeyEntry, []VerificationError) {
	out := make(map[string]map[string]OneTimeKeyEntry)
	var rejected []VerificationError

	for userIDStr, byDevice := range resp.OneTimeKeys {
		userID, err := identity.ParseUserID(userIDStr)
		if err != nil {
			continue
		}
		for deviceIDStr, entry := range byDevice {
			d, ok := e.devices.Get(userID, identity.DeviceID(deviceIDStr))
			if !ok || d.Deleted {
				rejected = append(rejected, VerificationError{UserID: userIDStr, DeviceID: deviceIDStr})
				continue
			}
			if !verifySelfSignature(userIDStr, deviceIDStr, d.Ed25519, entry.Raw, entry.Signatures) {
				rejected = append(rejected, VerificationError{UserID: userIDStr, DeviceID: deviceIDStr})
				continue
			}
			if out[userIDStr] == nil {
				out[userIDStr] = make(map[string]OneTimeKeyEntry)
			}
			out[userIDStr][deviceIDStr] = entry
		}
	}
	return out, rejected
}
