package olmsession

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"encoding/base64"
	"time"
)

// OneTimeKey is a single curve25519 one-time key, kept in the
// account's pool (private half included) until a peer's pre-key
// message consumes it via TakeOneTimeKey. Published records that
// MarkKeysAsPublished has marked it as uploaded to the server.
type OneTimeKey struct {
	ID        string
	Private   *ecdh.PrivateKey
	Published bool
}

// Account holds a local Olm account: its long-lived identity keys and
// its pool of one-time keys. An Account never regenerates its
// identity keys; only the one-time key pool changes over its
// lifetime.
type Account struct {
	Identity  *IdentityKeyPair
	CurveKey  *ecdh.PrivateKey
	oneTimeID uint64
	oneTime   map[string]*OneTimeKey

	// shared is how many one-time keys have been marked published,
	// i.e. handed to the server, used to decide replenishment.
	shared int
}

// NewAccount generates a fresh account with new identity keys and no
// one-time keys.
func NewAccount() (*Account, error) {
	identity, err := GenerateIdentityKeyPair()
	if err != nil {
		return nil, err
	}
	curveKey, err := GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return &Account{
		Identity: identity,
		CurveKey: curveKey,
		oneTime:  make(map[string]*OneTimeKey),
	}, nil
}

// Curve25519Public returns the account's curve25519 identity public
// key, base64-encoded.
func (a *Account) Curve25519Public() string {
	return base64.RawStdEncoding.EncodeToString(a.CurveKey.PublicKey().Bytes())
}

// Ed25519Public returns the account's ed25519 identity public key,
// base64-encoded.
func (a *Account) Ed25519Public() string {
	return base64.RawStdEncoding.EncodeToString([]byte(a.Identity.PublicKey))
}

// Sign produces an ed25519 signature over message using the
// account's identity signing key.
func (a *Account) Sign(message []byte) []byte {
	return ed25519.Sign(a.Identity.PrivateKey, message)
}

// GenerateOneTimeKeys generates n new one-time keys and adds them to
// the pool unpublished.
func (a *Account) GenerateOneTimeKeys(n int) ([]OneTimeKey, error) {
	out := make([]OneTimeKey, 0, n)
	for i := 0; i < n; i++ {
		priv, err := GenerateX25519KeyPair()
		if err != nil {
			return nil, err
		}
		a.oneTimeID++
		id := base64.RawStdEncoding.EncodeToString(priv.PublicKey().Bytes())
		otk := &OneTimeKey{ID: id, Private: priv}
		a.oneTime[id] = otk
		out = append(out, *otk)
	}
	return out, nil
}

// OneTimeKeysRemaining returns the number of unpublished one-time
// keys still in the pool.
func (a *Account) OneTimeKeysRemaining() int {
	remaining := 0
	for _, otk := range a.oneTime {
		if !otk.Published {
			remaining++
		}
	}
	return remaining
}

// SharedOneTimeKeyCount returns how many one-time keys have been
// marked published over the account's lifetime: the "shared" term in
// one_time_keys_remaining() = max - shared.
func (a *Account) SharedOneTimeKeyCount() int {
	return a.shared
}

// MarkKeysAsPublished marks every currently-unpublished one-time key
// as published. Published keys are never republished; a key leaves
// the pool when CreateInboundSession builds a session from it
// (TakeOneTimeKey).
func (a *Account) MarkKeysAsPublished() {
	for _, otk := range a.oneTime {
		if !otk.Published {
			otk.Published = true
			a.shared++
		}
	}
}

// TakeOneTimeKey removes and returns the one-time key with the given
// ID, for use as the responder side of pre-key agreement. It returns
// ErrNoOneTimeKey if no such key exists, which happens if it was
// already claimed by another message or never generated by this
// account.
func (a *Account) TakeOneTimeKey(id string) (*OneTimeKey, error) {
	otk, ok := a.oneTime[id]
	if !ok {
		return nil, ErrNoOneTimeKey
	}
	delete(a.oneTime, id)
	return otk, nil
}

// CreateOutboundSession runs pre-key agreement against a peer's
// identity and one-time key and returns a ready-to-use session plus
// the ephemeral key that must be sent in the pre-key message.
func (a *Account) CreateOutboundSession(remoteCurve25519, remoteOneTimeKey []byte, now time.Time) (*Session, []byte, error) {
	result, err := AgreePreKeyAsInitiator(a.CurveKey, remoteCurve25519, remoteOneTimeKey)
	if err != nil {
		return nil, nil, err
	}
	oneTimeKeyID := base64.RawStdEncoding.EncodeToString(remoteOneTimeKey)
	session, err := NewOutboundSession(result.SharedSecret, remoteOneTimeKey, a.CurveKey.PublicKey().Bytes(), result.EphemeralPub, oneTimeKeyID, now)
	if err != nil {
		return nil, nil, err
	}
	return session, result.EphemeralPub, nil
}

// CreateInboundSession completes pre-key agreement as the responder,
// consuming the local one-time key identified by oneTimeKeyID, and
// returns a ready-to-use session.
func (a *Account) CreateInboundSession(remoteCurve25519, remoteEphemeral []byte, oneTimeKeyID string, now time.Time) (*Session, error) {
	otk, err := a.TakeOneTimeKey(oneTimeKeyID)
	if err != nil {
		return nil, err
	}
	secret, err := AgreePreKeyAsResponder(otk.Private, a.CurveKey, remoteCurve25519, remoteEphemeral)
	if err != nil {
		return nil, err
	}
	return NewInboundSession(secret, otk.Private, now), nil
}
