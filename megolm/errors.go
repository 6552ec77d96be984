package megolm

import "errors"

var (
	ErrInvalidSignature = errors.New("megolm: invalid signature")
	ErrInvalidMessage   = errors.New("megolm: invalid message")
	ErrRatchetRewind    = errors.New("megolm: message index precedes ratchet and is not cached")
	ErrInvalidKeyLength = errors.New("megolm: invalid key length")
	ErrBadPickle        = errors.New("megolm: pickle decode failed")
)
