package olmsession

import (
	"bytes"
	"crypto/ecdh"
	"encoding/binary"
	"fmt"
	"io"
)

const maxSkippedKeys = 1000

// skippedKey identifies a message key that was skipped over because a
// later-indexed message arrived first.
type skippedKey struct {
	dhPub [32]byte
	n     uint32
}

// Ratchet holds the state of one pairwise Double Ratchet. It has no
// terminal state: sessions live forever, and a newer session becomes
// preferred for encryption only if its session ID sorts earlier
// (spec §4.6's pairwise state machine).
type Ratchet struct {
	DHs *ecdh.PrivateKey // our current ratchet key pair
	DHr []byte           // their current ratchet public key, or nil before the first receive

	RK  []byte // root key
	CKs []byte // sending chain key, nil until we have sent
	CKr []byte // receiving chain key, nil until we have received

	Ns uint32 // sending message number
	Nr uint32 // receiving message number
	PN uint32 // length of the previous sending chain

	MKSkipped map[skippedKey][]byte
}

// InitAsInitiator sets up the ratchet for the side that ran the
// pre-key agreement (Alice): a fresh DH pair is generated and the
// first sending chain is derived against the peer's signed one-time
// key.
func InitAsInitiator(sharedSecret, remoteRatchetKey []byte) (*Ratchet, error) {
	dhs, err := GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	dhOut, err := x25519DH(dhs, remoteRatchetKey)
	if err != nil {
		return nil, err
	}
	rk, cks, err := rootKDF(sharedSecret, dhOut)
	if err != nil {
		return nil, err
	}
	return &Ratchet{
		DHs:       dhs,
		DHr:       remoteRatchetKey,
		RK:        rk,
		CKs:       cks,
		Ns:        0,
		Nr:        0,
		PN:        0,
		MKSkipped: make(map[skippedKey][]byte),
	}, nil
}

// InitAsResponder sets up the ratchet for the receiving side (Bob):
// the root key is the raw shared secret, and the first DH ratchet
// step happens lazily on the first decrypt.
func InitAsResponder(sharedSecret []byte, localRatchetKey *ecdh.PrivateKey) *Ratchet {
	return &Ratchet{
		DHs:       localRatchetKey,
		RK:        sharedSecret,
		MKSkipped: make(map[skippedKey][]byte),
	}
}

// Encrypt advances the sending chain by one step and encrypts
// plaintext, returning the header to send alongside the ciphertext.
func (r *Ratchet) Encrypt(plaintext []byte) (*Header, []byte, error) {
	mk, nextCK := chainKDF(r.CKs)
	r.CKs = nextCK

	header := &Header{DHPub: r.DHs.PublicKey().Bytes(), N: r.Ns, PN: r.PN}
	r.Ns++

	nonce, ciphertext, err := aesGCMEncrypt(mk, plaintext)
	if err != nil {
		return nil, nil, err
	}
	out := make([]byte, len(nonce)+len(ciphertext))
	copy(out, nonce)
	copy(out[len(nonce):], ciphertext)
	return header, out, nil
}

// Decrypt decrypts a message, performing a DH ratchet step first if
// the header carries a ratchet public key we have not seen yet.
func (r *Ratchet) Decrypt(header *Header, ciphertext []byte) ([]byte, error) {
	if plaintext, err := r.trySkippedKeys(header, ciphertext); err == nil {
		return plaintext, nil
	}

	if r.DHr == nil || !bytes.Equal(header.DHPub, r.DHr) {
		if err := r.skipMessageKeys(header.PN); err != nil {
			return nil, err
		}
		if err := r.dhRatchetStep(header.DHPub); err != nil {
			return nil, err
		}
	}

	if err := r.skipMessageKeys(header.N); err != nil {
		return nil, err
	}

	mk, nextCK := chainKDF(r.CKr)
	r.CKr = nextCK
	r.Nr++

	return decryptWithNonce(mk, ciphertext)
}

func (r *Ratchet) trySkippedKeys(header *Header, ciphertext []byte) ([]byte, error) {
	var k skippedKey
	copy(k.dhPub[:], header.DHPub)
	k.n = header.N

	mk, ok := r.MKSkipped[k]
	if !ok {
		return nil, ErrInvalidMessage
	}
	delete(r.MKSkipped, k)
	return decryptWithNonce(mk, ciphertext)
}

func (r *Ratchet) skipMessageKeys(until uint32) error {
	if r.CKr == nil {
		return nil
	}
	if until > r.Nr+uint32(maxSkippedKeys) {
		return ErrSkippedKeyLimit
	}
	for r.Nr < until {
		mk, nextCK := chainKDF(r.CKr)
		r.CKr = nextCK

		var k skippedKey
		copy(k.dhPub[:], r.DHr)
		k.n = r.Nr
		r.MKSkipped[k] = mk
		r.Nr++

		if len(r.MKSkipped) > maxSkippedKeys {
			return ErrSkippedKeyLimit
		}
	}
	return nil
}

func (r *Ratchet) dhRatchetStep(newDHr []byte) error {
	r.PN = r.Ns
	r.Ns = 0
	r.Nr = 0
	r.DHr = make([]byte, 32)
	copy(r.DHr, newDHr)

	dhOut, err := x25519DH(r.DHs, r.DHr)
	if err != nil {
		return err
	}
	rk, ckr, err := rootKDF(r.RK, dhOut)
	if err != nil {
		return err
	}
	r.RK, r.CKr = rk, ckr

	r.DHs, err = GenerateX25519KeyPair()
	if err != nil {
		return err
	}
	dhOut, err = x25519DH(r.DHs, r.DHr)
	if err != nil {
		return err
	}
	rk, cks, err := rootKDF(r.RK, dhOut)
	if err != nil {
		return err
	}
	r.RK, r.CKs = rk, cks
	return nil
}

// MarshalBinary serializes the ratchet state for pickling.
func (r *Ratchet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(r.DHs.Bytes())
	writeOptionalKey(&buf, r.DHr)
	buf.Write(r.RK)
	writeOptionalKey(&buf, r.CKs)
	writeOptionalKey(&buf, r.CKr)

	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, r.Ns)
	buf.Write(b)
	binary.BigEndian.PutUint32(b, r.Nr)
	buf.Write(b)
	binary.BigEndian.PutUint32(b, r.PN)
	buf.Write(b)

	binary.BigEndian.PutUint32(b, uint32(len(r.MKSkipped)))
	buf.Write(b)
	for k, v := range r.MKSkipped {
		buf.Write(k.dhPub[:])
		binary.BigEndian.PutUint32(b, k.n)
		buf.Write(b)
		buf.Write(v)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a ratchet from its pickled form.
func (r *Ratchet) UnmarshalBinary(data []byte) error {
	rd := bytes.NewReader(data)

	dhsBytes := make([]byte, 32)
	if _, err := io.ReadFull(rd, dhsBytes); err != nil {
		return fmt.Errorf("%w: reading DHs: %v", ErrInvalidMessage, err)
	}
	var err error
	r.DHs, err = ecdh.X25519().NewPrivateKey(dhsBytes)
	if err != nil {
		return fmt.Errorf("%w: parsing DHs: %v", ErrInvalidMessage, err)
	}

	r.DHr, err = readOptionalKey(rd)
	if err != nil {
		return fmt.Errorf("%w: reading DHr: %v", ErrInvalidMessage, err)
	}

	r.RK = make([]byte, 32)
	if _, err := io.ReadFull(rd, r.RK); err != nil {
		return fmt.Errorf("%w: reading RK: %v", ErrInvalidMessage, err)
	}

	r.CKs, err = readOptionalKey(rd)
	if err != nil {
		return fmt.Errorf("%w: reading CKs: %v", ErrInvalidMessage, err)
	}
	r.CKr, err = readOptionalKey(rd)
	if err != nil {
		return fmt.Errorf("%w: reading CKr: %v", ErrInvalidMessage, err)
	}

	b := make([]byte, 4)
	if _, err := io.ReadFull(rd, b); err != nil {
		return fmt.Errorf("%w: reading Ns: %v", ErrInvalidMessage, err)
	}
	r.Ns = binary.BigEndian.Uint32(b)
	if _, err := io.ReadFull(rd, b); err != nil {
		return fmt.Errorf("%w: reading Nr: %v", ErrInvalidMessage, err)
	}
	r.Nr = binary.BigEndian.Uint32(b)
	if _, err := io.ReadFull(rd, b); err != nil {
		return fmt.Errorf("%w: reading PN: %v", ErrInvalidMessage, err)
	}
	r.PN = binary.BigEndian.Uint32(b)

	if _, err := io.ReadFull(rd, b); err != nil {
		return fmt.Errorf("%w: reading skipped count: %v", ErrInvalidMessage, err)
	}
	count := binary.BigEndian.Uint32(b)
	r.MKSkipped = make(map[skippedKey][]byte, count)
	for i := uint32(0); i < count; i++ {
		var k skippedKey
		if _, err := io.ReadFull(rd, k.dhPub[:]); err != nil {
			return fmt.Errorf("%w: reading skipped dhPub: %v", ErrInvalidMessage, err)
		}
		if _, err := io.ReadFull(rd, b); err != nil {
			return fmt.Errorf("%w: reading skipped n: %v", ErrInvalidMessage, err)
		}
		k.n = binary.BigEndian.Uint32(b)
		mk := make([]byte, 32)
		if _, err := io.ReadFull(rd, mk); err != nil {
			return fmt.Errorf("%w: reading skipped mk: %v", ErrInvalidMessage, err)
		}
		r.MKSkipped[k] = mk
	}
	return nil
}

func writeOptionalKey(buf *bytes.Buffer, key []byte) {
	if key != nil {
		buf.WriteByte(1)
		buf.Write(key)
	} else {
		buf.WriteByte(0)
	}
}

func readOptionalKey(r *bytes.Reader) ([]byte, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		return nil, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
