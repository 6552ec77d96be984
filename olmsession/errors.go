package olmsession

import "errors"

var (
	ErrInvalidSignature = errors.New("olmsession: invalid signature")
	ErrInvalidMessage   = errors.New("olmsession: invalid message")
	ErrNoOneTimeKey     = errors.New("olmsession: no one-time key available")
	ErrInvalidKeyLength = errors.New("olmsession: invalid key length")
	ErrSkippedKeyLimit  = errors.New("olmsession: too many skipped message keys")
	ErrBadPickle        = errors.New("olmsession: pickle decode failed")
)
