package olmsession

import (
	"crypto/ecdh"
	"encoding/base64"
	"time"
)

// Session wraps a pairwise ratchet with the identity needed to place
// it in a per-peer session store: its session ID, creation time, and
// (for a session we initiated) the one-time key we consumed.
type Session struct {
	SessionID    string
	CreationTime time.Time
	ratchet      *Ratchet

	// pendingBootstrap carries the bootstrap material (local identity
	// key, ephemeral key, claimed one-time key ID) a newly created
	// outbound session must attach to its first message so the peer
	// can complete pre-key agreement on their side. It is cleared
	// after EncryptMessage sends it once; this is not persisted across
	// a pickle/unpickle round trip, since a reloaded session is
	// assumed to already have completed its handshake.
	pendingBootstrap *bootstrapMaterial
}

type bootstrapMaterial struct {
	identityKey  []byte
	ephemeralKey []byte
	oneTimeKeyID string
}

// sessionIDFromRatchetKey derives a session ID from a ratchet public
// key: base64 (standard, unpadded) of the raw 32 bytes. Two sessions
// with the same initial ratchet key compare equal as session IDs,
// which is what makes a duplicate inbound session a no-op.
func sessionIDFromRatchetKey(pub []byte) string {
	return base64.RawStdEncoding.EncodeToString(pub)
}

// NewOutboundSession creates a session as the side that ran the
// pre-key agreement, from the agreed shared secret and the peer's
// one-time key, which seeds the first ratchet step. The session ID is
// derived from that one-time key, as NewInboundSession does on the
// peer's side, so both ends agree on it. localIdentityKey,
// ephemeralKey, and oneTimeKeyID are attached to the first message
// EncryptMessage produces, so the peer can complete pre-key agreement
// without a prior round trip.
func NewOutboundSession(sharedSecret, peerOneTimeKey, localIdentityKey, ephemeralKey []byte, oneTimeKeyID string, now time.Time) (*Session, error) {
	r, err := InitAsInitiator(sharedSecret, peerOneTimeKey)
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionID:    sessionIDFromRatchetKey(peerOneTimeKey),
		CreationTime: now,
		ratchet:      r,
		pendingBootstrap: &bootstrapMaterial{
			identityKey:  append([]byte(nil), localIdentityKey...),
			ephemeralKey: append([]byte(nil), ephemeralKey...),
			oneTimeKeyID: oneTimeKeyID,
		},
	}, nil
}

// NewInboundSession creates a session as the side that published the
// one-time key, from the shared secret recovered during pre-key
// agreement and the local one-time key pair that was claimed.
func NewInboundSession(sharedSecret []byte, localOneTimeKey *ecdh.PrivateKey, now time.Time) *Session {
	r := InitAsResponder(sharedSecret, localOneTimeKey)
	return &Session{
		SessionID:    sessionIDFromRatchetKey(localOneTimeKey.PublicKey().Bytes()),
		CreationTime: now,
		ratchet:      r,
	}
}

// Encrypt produces a ciphertext envelope: a marshaled header followed
// by the AEAD output.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	header, ciphertext, err := s.ratchet.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(headerBytes)+len(ciphertext))
	copy(out, headerBytes)
	copy(out[len(headerBytes):], ciphertext)
	return out, nil
}

// EncryptMessage produces the wire Message for plaintext: a pre-key
// message carrying this session's bootstrap material if it has not
// sent one yet, otherwise a normal ratchet message.
func (s *Session) EncryptMessage(plaintext []byte) (Message, error) {
	envelope, err := s.Encrypt(plaintext)
	if err != nil {
		return Message{}, err
	}
	if s.pendingBootstrap != nil {
		b := s.pendingBootstrap
		s.pendingBootstrap = nil
		return NewPreKeyMessage(b.identityKey, b.ephemeralKey, b.oneTimeKeyID, envelope), nil
	}
	return NewNormalMessage(envelope), nil
}

// Decrypt reverses Encrypt, splitting the envelope back into a header
// and ciphertext before handing both to the ratchet.
func (s *Session) Decrypt(envelope []byte) ([]byte, error) {
	if len(envelope) < headerSize {
		return nil, ErrInvalidMessage
	}
	var header Header
	if err := header.UnmarshalBinary(envelope[:headerSize]); err != nil {
		return nil, err
	}
	return s.ratchet.Decrypt(&header, envelope[headerSize:])
}

// MatchesMessage reports whether this session's ratchet recognizes
// the given pairwise ciphertext's header, meaning it is a plausible
// candidate to attempt decryption with.
func (s *Session) MatchesMessage(envelope []byte) bool {
	if len(envelope) < headerSize {
		return false
	}
	var header Header
	if err := header.UnmarshalBinary(envelope[:headerSize]); err != nil {
		return false
	}
	return s.ratchet.DHr == nil || string(header.DHPub) == string(s.ratchet.DHr)
}

// Pickle serializes the session (ratchet state plus metadata) for
// persistence. The output is not encrypted: it holds the ratchet's
// private and chain keys in plaintext.
func (s *Session) Pickle() ([]byte, error) {
	ratchetBytes, err := s.ratchet.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return marshalPickledSession(s.SessionID, s.CreationTime, ratchetBytes), nil
}

// UnpickleSession restores a session from its pickled form.
func UnpickleSession(data []byte) (*Session, error) {
	sessionID, creationTime, ratchetBytes, err := unmarshalPickledSession(data)
	if err != nil {
		return nil, err
	}
	r := &Ratchet{}
	if err := r.UnmarshalBinary(ratchetBytes); err != nil {
		return nil, err
	}
	return &Session{SessionID: sessionID, CreationTime: creationTime, ratchet: r}, nil
}
