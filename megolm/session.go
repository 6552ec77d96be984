package megolm

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// RotationAge is the maximum age before an outbound session must
	// be rotated.
	RotationAge = 7 * 24 * time.Hour
	// RotationMessageCount is the maximum number of messages an
	// outbound session may encrypt before rotation.
	RotationMessageCount = 100

	// messageKeyCacheSize bounds the replay cache on an inbound
	// session: the number of derived message keys (skipped-ahead or
	// already decrypted) retained for out-of-order or repeated
	// decryption.
	messageKeyCacheSize = 500
)

// OutboundGroupSession is the sending side of a room's group ratchet.
// A room has at most one active outbound session at a time.
type OutboundGroupSession struct {
	RoomID       string
	SessionID    string
	CreationTime time.Time
	MessageCount int

	signingKey ed25519.PrivateKey
	ratchet    *ratchet

	// SharedWith records which (user_id, device_id) pairs have already
	// received this session's key, so re-sharing is a no-op.
	SharedWith map[[2]string]struct{}
}

// NewOutboundGroupSession creates a fresh session with a random chain
// seed and a fresh ed25519 signing key used to authenticate every
// message sent on it.
func NewOutboundGroupSession(roomID string, now time.Time) (*OutboundGroupSession, error) {
	seed := make([]byte, chainKeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	sessionID := base64.RawStdEncoding.EncodeToString(pub)
	return &OutboundGroupSession{
		RoomID:       roomID,
		SessionID:    sessionID,
		CreationTime: now,
		ratchet:      newRatchet(seed, 0),
		signingKey:   priv,
		SharedWith:   make(map[[2]string]struct{}),
	}, nil
}

// Expired reports whether the session has passed either rotation
// threshold and must not be used for further encryption.
func (s *OutboundGroupSession) Expired(now time.Time) bool {
	return now.Sub(s.CreationTime) >= RotationAge || s.MessageCount >= RotationMessageCount
}

// SessionKey exports the material a recipient needs to build a
// matching InboundGroupSession: the signing public key, the chain
// seed at the current index, and the index itself.
func (s *OutboundGroupSession) SessionKey() SessionKeyExport {
	return SessionKeyExport{
		SigningPublicKey: append([]byte(nil), s.signingKey.Public().(ed25519.PublicKey)...),
		ChainKey:         append([]byte(nil), s.ratchet.chainKey...),
		Index:            s.ratchet.index,
	}
}

// MarkShared records that (userID, deviceID) has received this
// session's key. It returns false if the pair was already recorded,
// so the caller can skip re-sending idempotently.
func (s *OutboundGroupSession) MarkShared(userID, deviceID string) bool {
	key := [2]string{userID, deviceID}
	if _, ok := s.SharedWith[key]; ok {
		return false
	}
	s.SharedWith[key] = struct{}{}
	return true
}

// HasShared reports whether (userID, deviceID) is already recorded as
// having received this session's key.
func (s *OutboundGroupSession) HasShared(userID, deviceID string) bool {
	_, ok := s.SharedWith[[2]string{userID, deviceID}]
	return ok
}

// Encrypt advances the ratchet by one step and returns a signed,
// encrypted message envelope. It increments MessageCount; the caller
// must check Expired before calling Encrypt for the next message.
func (s *OutboundGroupSession) Encrypt(plaintext []byte) (*Message, error) {
	index := s.ratchet.index
	messageKey := s.ratchet.advance()
	s.MessageCount++

	aesKey, err := deriveAESKey(messageKey)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := aesGCMEncrypt(aesKey, plaintext)
	if err != nil {
		return nil, err
	}

	body := marshalBody(index, nonce, ciphertext)
	signature := ed25519.Sign(s.signingKey, body)

	return &Message{
		SessionID: s.SessionID,
		Index:     index,
		Body:      body,
		Signature: signature,
	}, nil
}

// SessionKeyExport is the material shared out-of-band (via an Olm
// to-device m.room_key event) to let a recipient construct an
// InboundGroupSession.
type SessionKeyExport struct {
	SigningPublicKey ed25519.PublicKey
	ChainKey         []byte
	Index            uint32
}

// InboundGroupSession is the receiving side of one sender's group
// ratchet for one room. It holds its own copy of the chain, advanced
// forward as messages at increasing indices are decrypted, and a
// bounded cache of message keys for indices already seen so a replay
// or an out-of-order earlier message decrypts without rewinding the
// ratchet (invariant: ratchet index is monotonically non-decreasing).
type InboundGroupSession struct {
	RoomID           string
	SessionID        string
	SenderCurve25519 string
	SenderEd25519    string

	signingPublicKey ed25519.PublicKey
	ratchet          *ratchet
	cache            *lru.Cache[uint32, []byte]
}

// NewInboundGroupSession builds a session from a SessionKeyExport
// received over an authenticated Olm channel.
func NewInboundGroupSession(roomID, senderCurve25519, senderEd25519, sessionID string, export SessionKeyExport) (*InboundGroupSession, error) {
	cache, err := lru.New[uint32, []byte](messageKeyCacheSize)
	if err != nil {
		return nil, err
	}
	return &InboundGroupSession{
		RoomID:           roomID,
		SessionID:        sessionID,
		SenderCurve25519: senderCurve25519,
		SenderEd25519:    senderEd25519,
		signingPublicKey: append(ed25519.PublicKey(nil), export.SigningPublicKey...),
		ratchet:          newRatchet(export.ChainKey, export.Index),
		cache:            cache,
	}, nil
}

// Decrypt verifies the message signature, recovers or derives the
// message key for msg.Index, and decrypts.
func (s *InboundGroupSession) Decrypt(msg *Message) ([]byte, error) {
	if !ed25519.Verify(s.signingPublicKey, msg.Body, msg.Signature) {
		return nil, ErrInvalidSignature
	}
	index, nonce, ciphertext, err := unmarshalBody(msg.Body)
	if err != nil {
		return nil, err
	}

	messageKey, err := s.messageKeyForIndex(index)
	if err != nil {
		return nil, err
	}
	aesKey, err := deriveAESKey(messageKey)
	if err != nil {
		return nil, err
	}
	return aesGCMDecrypt(aesKey, nonce, ciphertext)
}

func (s *InboundGroupSession) messageKeyForIndex(index uint32) ([]byte, error) {
	if index < s.ratchet.index {
		if mk, ok := s.cache.Get(index); ok {
			return mk, nil
		}
		return nil, ErrRatchetRewind
	}
	var messageKey []byte
	for s.ratchet.index <= index {
		at := s.ratchet.index
		mk := s.ratchet.advance()
		s.cache.Add(at, mk)
		if at == index {
			messageKey = mk
		}
	}
	return messageKey, nil
}
