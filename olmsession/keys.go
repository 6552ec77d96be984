// Package olmsession implements the pairwise Olm account and Double
// Ratchet session used to wrap per-room group session keys for
// delivery to a single remote device.
package olmsession

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
)

// IdentityKeyPair holds the local account's long-term Ed25519 signing
// key. Unlike OMEMO/Signal, a Matrix Olm account's ed25519 and
// curve25519 identity keys are generated independently — there is no
// birational conversion between them.
type IdentityKeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateIdentityKeyPair generates a new Ed25519 identity key pair.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &IdentityKeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// GenerateX25519KeyPair generates a new Curve25519 (X25519) key pair,
// used for both the account's curve25519 identity key and for
// one-time/ratchet keys.
func GenerateX25519KeyPair() (*ecdh.PrivateKey, error) {
	return ecdh.X25519().GenerateKey(rand.Reader)
}

// x25519DH performs an X25519 Diffie-Hellman exchange against a raw
// 32-byte public key.
func x25519DH(privateKey *ecdh.PrivateKey, publicKeyBytes []byte) ([]byte, error) {
	pub, err := ecdh.X25519().NewPublicKey(publicKeyBytes)
	if err != nil {
		return nil, err
	}
	return privateKey.ECDH(pub)
}
