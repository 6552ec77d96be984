package olmsession

import (
	"bytes"
	"crypto/ecdh"
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

// pickleKey stretches a user-supplied passphrase into an AES-256 key
// for pickling under the given salt; encryptPickle stores that salt
// next to the ciphertext.
func pickleKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pickleIterations, aesKeySize, sha256.New)
}

// encryptPickle wraps plaintext for storage: a fresh PBKDF2 salt,
// followed by the AES-GCM nonce and ciphertext, all under a key
// derived from passphrase.
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

// decryptPickle reverses encryptPickle.
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

// marshalPickledSession lays out the plaintext body pickled for a
// Session: session ID length-prefixed, creation time as Unix nanos,
// then the raw ratchet bytes.
func marshalPickledSession(sessionID string, creationTime time.Time, ratchetBytes []byte) []byte {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(sessionID))
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(creationTime.UnixNano()))
	buf.Write(b)
	buf.Write(ratchetBytes)
	return buf.Bytes()
}

func unmarshalPickledSession(data []byte) (sessionID string, creationTime time.Time, ratchetBytes []byte, err error) {
	rd := bytes.NewReader(data)
	idBytes, err := readLenPrefixed(rd)
	if err != nil {
		return "", time.Time{}, nil, ErrBadPickle
	}
	var b [8]byte
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return "", time.Time{}, nil, ErrBadPickle
	}
	nanos := binary.BigEndian.Uint64(b[:])
	rest := make([]byte, rd.Len())
	if _, err := io.ReadFull(rd, rest); err != nil {
		return "", time.Time{}, nil, ErrBadPickle
	}
	return string(idBytes), time.Unix(0, int64(nanos)).UTC(), rest, nil
}

// Pickle encrypts an Account for on-disk storage: identity keys,
// remaining one-time keys (published flag included), and the next
// key ID counter.
func (a *Account) Pickle(passphrase string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(a.Identity.PrivateKey)
	buf.Write(a.CurveKey.Bytes())

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, a.oneTimeID)
	buf.Write(b)
	binary.BigEndian.PutUint64(b, uint64(a.shared))
	buf.Write(b)

	binary.BigEndian.PutUint32(b[:4], uint32(len(a.oneTime)))
	buf.Write(b[:4])
	for _, otk := range a.oneTime {
		writeLenPrefixed(&buf, []byte(otk.ID))
		buf.Write(otk.Private.Bytes())
		if otk.Published {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	return encryptPickle(passphrase, buf.Bytes())
}

// UnpickleAccount decrypts and restores an Account pickled with the
// same passphrase.
func UnpickleAccount(passphrase string, data []byte) (*Account, error) {
	plaintext, err := decryptPickle(passphrase, data)
	if err != nil {
		return nil, err
	}
	rd := bytes.NewReader(plaintext)

	edPriv := make([]byte, ed25519.PrivateKeySize)
	if _, err := io.ReadFull(rd, edPriv); err != nil {
		return nil, ErrBadPickle
	}
	curvePriv := make([]byte, 32)
	if _, err := io.ReadFull(rd, curvePriv); err != nil {
		return nil, ErrBadPickle
	}
	curveKey, err := ecdh.X25519().NewPrivateKey(curvePriv)
	if err != nil {
		return nil, ErrBadPickle
	}

	var b [8]byte
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return nil, ErrBadPickle
	}
	oneTimeID := binary.BigEndian.Uint64(b[:])
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return nil, ErrBadPickle
	}
	shared := int(binary.BigEndian.Uint64(b[:]))

	var b4 [4]byte
	if _, err := io.ReadFull(rd, b4[:]); err != nil {
		return nil, ErrBadPickle
	}
	count := binary.BigEndian.Uint32(b4[:])

	oneTime := make(map[string]*OneTimeKey, count)
	for i := uint32(0); i < count; i++ {
		idBytes, err := readLenPrefixed(rd)
		if err != nil {
			return nil, ErrBadPickle
		}
		priv := make([]byte, 32)
		if _, err := io.ReadFull(rd, priv); err != nil {
			return nil, ErrBadPickle
		}
		privKey, err := ecdh.X25519().NewPrivateKey(priv)
		if err != nil {
			return nil, ErrBadPickle
		}
		publishedByte, err := rd.ReadByte()
		if err != nil {
			return nil, ErrBadPickle
		}
		id := string(idBytes)
		oneTime[id] = &OneTimeKey{ID: id, Private: privKey, Published: publishedByte == 1}
	}

	return &Account{
		Identity:  &IdentityKeyPair{PrivateKey: ed25519.PrivateKey(edPriv), PublicKey: ed25519.PrivateKey(edPriv).Public().(ed25519.PublicKey)},
		CurveKey:  curveKey,
		oneTimeID: oneTimeID,
		shared:    shared,
		oneTime:   oneTime,
	}, nil
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
