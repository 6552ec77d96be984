// Package device tracks the identity and one-time keys of remote devices
// and their trust state.
package device

import (
	"errors"

	"github.com/go-trix/e2ee/identity"
)

// Algorithm identifies the cryptographic purpose of a Key.
type Algorithm string

const (
	AlgorithmEd25519   Algorithm = "ed25519"
	AlgorithmCurve25519 Algorithm = "curve25519"
)

var ErrUnknownAlgorithm = errors.New("device: unknown key algorithm")

// Key is an immutable device key record. Equality is over all four
// fields; creation timestamps, where tracked by a caller, are not part
// of a Key's identity.
type Key struct {
	UserID    identity.UserID
	DeviceID  identity.DeviceID
	Algorithm Algorithm
	Public    string // base64, unpadded
}

// Equal reports whether two keys are identical in every field.
func (k Key) Equal(other Key) bool {
	return k.UserID.Equal(other.UserID) &&
		k.DeviceID == other.DeviceID &&
		k.Algorithm == other.Algorithm &&
		k.Public == other.Public
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmEd25519, AlgorithmCurve25519:
		return Algorithm(s), nil
	default:
		return "", ErrUnknownAlgorithm
	}
}
