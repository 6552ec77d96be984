package olmsession

import "encoding/base64"

// MessageType distinguishes a pre-key message, which carries enough
// material to bootstrap an inbound session, from a normal ratchet
// message that requires an existing session.
type MessageType int

const (
	// MessageTypePreKey is the first message sent on a new outbound
	// session: it carries the sender's identity key, ephemeral key,
	// and the ID of the one-time key it claims, ahead of the ratchet
	// ciphertext.
	MessageTypePreKey MessageType = 0
	// MessageTypeNormal is any subsequent ratchet message.
	MessageTypeNormal MessageType = 1
)

// Message is the wire form of a pairwise Olm ciphertext as delivered
// in a to-device event's content.
type Message struct {
	Type MessageType `json:"type"`

	// Pre-key fields, set only when Type == MessageTypePreKey.
	IdentityKey  string `json:"identity_key,omitempty"`  // base64 curve25519
	EphemeralKey string `json:"ephemeral_key,omitempty"` // base64 curve25519
	OneTimeKeyID string `json:"one_time_key_id,omitempty"`

	Ciphertext string `json:"ciphertext"` // base64, the ratchet envelope (header || AEAD output)
}

// Body decodes the base64 ratchet ciphertext envelope.
func (m *Message) Body() ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(m.Ciphertext)
}

// NewPreKeyMessage builds a pre-key message wrapping a ratchet
// envelope.
func NewPreKeyMessage(identityKey, ephemeralKey []byte, oneTimeKeyID string, envelope []byte) Message {
	return Message{
		Type:         MessageTypePreKey,
		IdentityKey:  base64.RawStdEncoding.EncodeToString(identityKey),
		EphemeralKey: base64.RawStdEncoding.EncodeToString(ephemeralKey),
		OneTimeKeyID: oneTimeKeyID,
		Ciphertext:   base64.RawStdEncoding.EncodeToString(envelope),
	}
}

// NewNormalMessage builds a normal ratchet message.
func NewNormalMessage(envelope []byte) Message {
	return Message{
		Type:       MessageTypeNormal,
		Ciphertext: base64.RawStdEncoding.EncodeToString(envelope),
	}
}
