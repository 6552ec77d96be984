// Package megolm implements the one-to-many forward-secret group
// ratchet used to encrypt a single room's messages for many
// recipients from one sender. Unlike the pairwise Olm ratchet there
// is no DH step: a session holds one hash-chain per sender, advanced
// forward by message index, with an ed25519 signature binding each
// ciphertext to the session that produced it.
package megolm

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const chainKeySize = 32

// ratchet is a single forward hash chain: advancing it derives the
// next chain key from the current one and is one-way, which is what
// gives a compromised later key no way to recover earlier message
// keys (forward secrecy) while still letting a receiver who holds an
// early key derive every later one.
type ratchet struct {
	index    uint32
	chainKey []byte
}

func newRatchet(seed []byte, startIndex uint32) *ratchet {
	ck := make([]byte, chainKeySize)
	copy(ck, seed)
	return &ratchet{index: startIndex, chainKey: ck}
}

// advance derives the message key for the current index and steps the
// chain forward by one.
func (r *ratchet) advance() (messageKey []byte) {
	mk := hmac.New(sha256.New, r.chainKey)
	mk.Write([]byte{0x01})
	messageKey = mk.Sum(nil)

	next := hmac.New(sha256.New, r.chainKey)
	next.Write([]byte{0x02})
	r.chainKey = next.Sum(nil)

	r.index++
	return messageKey
}

// deriveAESKey stretches a raw message key into an AES-256-GCM key via
// HKDF, separating the chain-ratchet domain from the AEAD domain.
func deriveAESKey(messageKey []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, messageKey, nil, []byte("matrix-megolm message"))
	out := make([]byte, aesKeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}
