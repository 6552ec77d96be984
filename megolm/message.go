package megolm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

// Message is the wire form of one Megolm ciphertext: the signed body
// (index || nonce || AEAD output) plus the ed25519 signature binding
// it to the sending session.
type Message struct {
	SessionID string
	Index     uint32
	Body      []byte
	Signature []byte
}

// Encode renders the message as the base64 ciphertext blob carried in
// a room event's content.ciphertext field; SessionID and device_id
// travel alongside it in the envelope, not inside this blob.
func (m *Message) Encode() string {
	var buf bytes.Buffer
	buf.Write(m.Body)
	buf.Write(m.Signature)
	return base64.RawStdEncoding.EncodeToString(buf.Bytes())
}

// DecodeMessage parses a base64 ciphertext blob back into body and
// signature halves.
func DecodeMessage(sessionID, encoded string) (*Message, error) {
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidMessage
	}
	if len(raw) < ed25519SignatureSize {
		return nil, ErrInvalidMessage
	}
	body := raw[:len(raw)-ed25519SignatureSize]
	signature := raw[len(raw)-ed25519SignatureSize:]

	index, _, _, err := unmarshalBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{SessionID: sessionID, Index: index, Body: body, Signature: signature}, nil
}

const ed25519SignatureSize = 64

func marshalBody(index uint32, nonce, ciphertext []byte) []byte {
	buf := make([]byte, 4+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint32(buf[:4], index)
	copy(buf[4:4+len(nonce)], nonce)
	copy(buf[4+len(nonce):], ciphertext)
	return buf
}

func unmarshalBody(body []byte) (index uint32, nonce, ciphertext []byte, err error) {
	if len(body) < 4+aesNonceSize {
		return 0, nil, nil, ErrInvalidMessage
	}
	index = binary.BigEndian.Uint32(body[:4])
	nonce = body[4 : 4+aesNonceSize]
	ciphertext = body[4+aesNonceSize:]
	return index, nonce, ciphertext, nil
}
