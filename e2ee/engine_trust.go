package e2ee

import (
	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
)

// VerifyDevice marks a device verified and records its ed25519
// fingerprint in the trust store. Changing trust never invalidates
// existing group sessions (spec §4.6 "Verification API"); it only
// affects future shares.
func (e *Engine) VerifyDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	return e.setTrust(userID, deviceID, device.TrustVerified)
}

// UnverifyDevice reverts a device to unset trust and removes its
// fingerprint from the trust store. This is the only trust transition
// that removes a stored fingerprint (spec §3 invariant 2: a verified
// fingerprint is never implicitly removed).
func (e *Engine) UnverifyDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	d, ok := e.devices.Get(userID, deviceID)
	if !ok {
		return &FormatError{Field: "device", Reason: "unknown device"}
	}
	e.devices.SetTrust(userID, deviceID, device.TrustUnset)
	if _, err := e.trust.Remove(d.Ed25519Key()); err != nil {
		return err
	}
	return e.persist.SaveDeviceKeys(e.devices.Snapshot())
}

// BlacklistDevice marks a device blacklisted: it is silently excluded
// from future shares (spec §4.6 step 2).
func (e *Engine) BlacklistDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	return e.setTrust(userID, deviceID, device.TrustBlacklisted)
}

// UnblacklistDevice reverts a blacklisted device to unset trust. It
// never touches the trust store: blacklisting a verified device and
// then lifting the blacklist must leave its verified fingerprint
// intact, since the caller only asked to lift the blacklist.
func (e *Engine) UnblacklistDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	return e.setTrust(userID, deviceID, device.TrustUnset)
}

// IgnoreDevice marks a device ignored: sharable per
// EngineConfig.ShareWithIgnoredDevices, but flagged distinctly from a
// verified device.
func (e *Engine) IgnoreDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	return e.setTrust(userID, deviceID, device.TrustIgnored)
}

// UnignoreDevice reverts an ignored device to unset trust, likewise
// without touching the trust store.
func (e *Engine) UnignoreDevice(userID identity.UserID, deviceID identity.DeviceID) error {
	return e.setTrust(userID, deviceID, device.TrustUnset)
}

// setTrust updates a device's trust state. Only transitioning into
// TrustVerified ever mutates the trust store (by adding the
// fingerprint); transitioning out of any state, including back to
// TrustUnset, leaves a previously recorded fingerprint in place.
func (e *Engine) setTrust(userID identity.UserID, deviceID identity.DeviceID, state device.TrustState) error {
	d, ok := e.devices.Get(userID, deviceID)
	if !ok {
		return &FormatError{Field: "device", Reason: "unknown device"}
	}
	e.devices.SetTrust(userID, deviceID, state)
	if state == device.TrustVerified {
		if _, err := e.trust.Add(d.Ed25519Key()); err != nil {
			return err
		}
	}
	return e.persist.SaveDeviceKeys(e.devices.Snapshot())
}
