package device

import "github.com/go-trix/e2ee/identity"

// TrustState records the local user's decision about a remote device.
type TrustState int

const (
	TrustUnset TrustState = iota
	TrustVerified
	TrustBlacklisted
	TrustIgnored
)

func (t TrustState) String() string {
	switch t {
	case TrustVerified:
		return "verified"
	case TrustBlacklisted:
		return "blacklisted"
	case TrustIgnored:
		return "ignored"
	default:
		return "unset"
	}
}

// Device is a single remote device: its identity, its current
// curve25519 ratchet key, and the local trust decision about it.
//
// Ed25519 is the device's stable fingerprint. Registry.Add refuses a
// different ed25519 key over a live record for the same
// (UserID, DeviceID). When a later keys-query response reports such a
// change, the existing record is first marked Deleted and the new
// record then takes its slot; the registry holds one record per slot,
// so the old record is not retained.
type Device struct {
	UserID     identity.UserID
	DeviceID   identity.DeviceID
	Ed25519    string
	Curve25519 string
	Deleted    bool
	TrustState TrustState
}

// Ed25519Key returns the device's ed25519 identity key as a Key value.
func (d Device) Ed25519Key() Key {
	return Key{UserID: d.UserID, DeviceID: d.DeviceID, Algorithm: AlgorithmEd25519, Public: d.Ed25519}
}

// Curve25519Key returns the device's curve25519 ratchet key as a Key value.
func (d Device) Curve25519Key() Key {
	return Key{UserID: d.UserID, DeviceID: d.DeviceID, Algorithm: AlgorithmCurve25519, Public: d.Curve25519}
}

// active reports whether the device is usable as an encryption target:
// not deleted and not blacklisted.
func (d Device) active() bool {
	return !d.Deleted && d.TrustState != TrustBlacklisted
}
