package olmsession

import (
	"encoding/binary"
	"fmt"
)

// Header carries the public ratchet state attached to every pairwise
// ciphertext: the sender's current ratchet public key and the message
// counters needed for the receiver to locate or derive the right
// message key.
type Header struct {
	DHPub []byte // 32 bytes, X25519 public ratchet key
	N     uint32 // message number in the sending chain
	PN    uint32 // length of the previous sending chain
}

const headerSize = 32 + 4 + 4

func (h *Header) MarshalBinary() ([]byte, error) {
	if len(h.DHPub) != 32 {
		return nil, ErrInvalidKeyLength
	}
	buf := make([]byte, headerSize)
	copy(buf[:32], h.DHPub)
	binary.BigEndian.PutUint32(buf[32:36], h.N)
	binary.BigEndian.PutUint32(buf[36:40], h.PN)
	return buf, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != headerSize {
		return fmt.Errorf("%w: header size %d, expected %d", ErrInvalidMessage, len(data), headerSize)
	}
	h.DHPub = make([]byte, 32)
	copy(h.DHPub, data[:32])
	h.N = binary.BigEndian.Uint32(data[32:36])
	h.PN = binary.BigEndian.Uint32(data[36:40])
	return nil
}
