package megolm

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pickleSaltSize   = 16
	pickleIterations = 200_000
)

func pickleKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pickleIterations, aesKeySize, sha256.New)
}

func encryptPickle(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, pickleSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pickleKey(passphrase, salt)
	nonce, ciphertext, err := aesGCMEncrypt(key, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decryptPickle(passphrase string, data []byte) ([]byte, error) {
	if len(data) < pickleSaltSize+aesNonceSize {
		return nil, ErrBadPickle
	}
	salt := data[:pickleSaltSize]
	nonce := data[pickleSaltSize : pickleSaltSize+aesNonceSize]
	ciphertext := data[pickleSaltSize+aesNonceSize:]

	key := pickleKey(passphrase, salt)
	plaintext, err := aesGCMDecrypt(key, nonce, ciphertext)
	if err != nil {
		return nil, ErrBadPickle
	}
	return plaintext, nil
}

// Pickle encrypts an OutboundGroupSession for storage: room ID,
// session ID, creation time, message count, signing private key, and
// current chain state. SharedWith is not persisted across pickling;
// it is tracked for the in-memory lifetime of the session only, so a
// session restored by UnpickleOutboundGroupSession treats every
// device as not yet shared with.
func (s *OutboundGroupSession) Pickle(passphrase string) ([]byte, error) {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(s.RoomID))
	writeLenPrefixed(&buf, []byte(s.SessionID))

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s.CreationTime.UnixNano()))
	buf.Write(b)
	binary.BigEndian.PutUint64(b, uint64(s.MessageCount))
	buf.Write(b)

	buf.Write(s.signingKey)

	b4 := make([]byte, 4)
	binary.BigEndian.PutUint32(b4, s.ratchet.index)
	buf.Write(b4)
	buf.Write(s.ratchet.chainKey)

	return encryptPickle(passphrase, buf.Bytes())
}

// UnpickleOutboundGroupSession restores a session pickled with
// Pickle. The returned session has an empty SharedWith set.
func UnpickleOutboundGroupSession(passphrase string, data []byte) (*OutboundGroupSession, error) {
	plaintext, err := decryptPickle(passphrase, data)
	if err != nil {
		return nil, err
	}
	rd := bytes.NewReader(plaintext)

	roomID, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}
	sessionID, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}

	var b [8]byte
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return nil, ErrBadPickle
	}
	creationTime := time.Unix(0, int64(binary.BigEndian.Uint64(b[:]))).UTC()
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return nil, ErrBadPickle
	}
	messageCount := int(binary.BigEndian.Uint64(b[:]))

	signingKey := make([]byte, ed25519.PrivateKeySize)
	if _, err := io.ReadFull(rd, signingKey); err != nil {
		return nil, ErrBadPickle
	}

	var b4 [4]byte
	if _, err := io.ReadFull(rd, b4[:]); err != nil {
		return nil, ErrBadPickle
	}
	index := binary.BigEndian.Uint32(b4[:])
	chainKey := make([]byte, chainKeySize)
	if _, err := io.ReadFull(rd, chainKey); err != nil {
		return nil, ErrBadPickle
	}

	return &OutboundGroupSession{
		RoomID:       string(roomID),
		SessionID:    string(sessionID),
		CreationTime: creationTime,
		MessageCount: messageCount,
		signingKey:   ed25519.PrivateKey(signingKey),
		ratchet:      newRatchet(chainKey, index),
		SharedWith:   make(map[[2]string]struct{}),
	}, nil
}

// Pickle encrypts an InboundGroupSession for storage.
func (s *InboundGroupSession) Pickle(passphrase string) ([]byte, error) {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(s.RoomID))
	writeLenPrefixed(&buf, []byte(s.SessionID))
	writeLenPrefixed(&buf, []byte(s.SenderCurve25519))
	writeLenPrefixed(&buf, []byte(s.SenderEd25519))
	buf.Write(s.signingPublicKey)

	b4 := make([]byte, 4)
	binary.BigEndian.PutUint32(b4, s.ratchet.index)
	buf.Write(b4)
	buf.Write(s.ratchet.chainKey)

	return encryptPickle(passphrase, buf.Bytes())
}

// UnpickleInboundGroupSession restores a session pickled with Pickle.
// Its replay cache starts empty; any message at an index earlier than
// the restored ratchet index is no longer recoverable after a reload,
// since the cache is memory-only.
func UnpickleInboundGroupSession(passphrase string, data []byte) (*InboundGroupSession, error) {
	plaintext, err := decryptPickle(passphrase, data)
	if err != nil {
		return nil, err
	}
	rd := bytes.NewReader(plaintext)

	roomID, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}
	sessionID, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}
	senderCurve, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}
	senderEd, err := readLenPrefixed(rd)
	if err != nil {
		return nil, ErrBadPickle
	}
	signingPub := make([]byte, ed25519.PublicKeySize)
	if _, err := io.ReadFull(rd, signingPub); err != nil {
		return nil, ErrBadPickle
	}

	var b4 [4]byte
	if _, err := io.ReadFull(rd, b4[:]); err != nil {
		return nil, ErrBadPickle
	}
	index := binary.BigEndian.Uint32(b4[:])
	chainKey := make([]byte, chainKeySize)
	if _, err := io.ReadFull(rd, chainKey); err != nil {
		return nil, ErrBadPickle
	}

	session, err := NewInboundGroupSession(string(roomID), string(senderCurve), string(senderEd), string(sessionID), SessionKeyExport{
		SigningPublicKey: signingPub,
		ChainKey:         chainKey,
		Index:            index,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(len(data)))
	buf.Write(b)
	buf.Write(data)
}

func readLenPrefixed(rd *bytes.Reader) ([]byte, error) {
	var b [4]byte
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(b[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(rd, data); err != nil {
		return nil, err
	}
	return data, nil
}
