package megolm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

const (
	aesKeySize   = 32
	aesNonceSize = 12
)

func aesGCMEncrypt(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != aesKeySize {
		return nil, nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aesNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

func aesGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != aesKeySize {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != aesNonceSize {
		return nil, ErrInvalidMessage
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidMessage
	}
	return plaintext, nil
}
