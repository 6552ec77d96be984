package e2ee

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-trix/e2ee/device"
)

// ErrNoOutboundGroupSession is returned by EncryptGroupMessage when
// the room has no current outbound session; the caller must run
// EnsureOutboundGroupSession (and usually ShareGroupSession) first.
var ErrNoOutboundGroupSession = errors.New("e2ee: no outbound group session for room")

// OlmTrustError is returned when share_group_session is asked to share
// with a device whose trust_state is unset. The operation is aborted
// with no state mutated.
type OlmTrustError struct {
	RoomID  string
	Devices []device.Key
}

func (e *OlmTrustError) Error() string {
	return fmt.Sprintf("e2ee: room %s: unset trust state for %s", e.RoomID, deviceKeyList(e.Devices))
}

// EncryptionError is returned when a group-session share cannot
// proceed because one or more target devices have no pairwise
// session yet. The caller is expected to issue a keys-claim request
// and retry.
type EncryptionError struct {
	Reason  string
	Devices []device.Key
}

func (e *EncryptionError) Error() string {
	if len(e.Devices) == 0 {
		return fmt.Sprintf("e2ee: %s", e.Reason)
	}
	return fmt.Sprintf("e2ee: %s: %s", e.Reason, deviceKeyList(e.Devices))
}

// OlmSessionError is returned when every candidate pairwise session
// fails to decrypt a ciphertext. The event is dropped; the session
// store is left unchanged.
type OlmSessionError struct {
	SenderCurve25519 string
	Cause            error
}

func (e *OlmSessionError) Error() string {
	return fmt.Sprintf("e2ee: olm decrypt failed for sender %s: %v", e.SenderCurve25519, e.Cause)
}

func (e *OlmSessionError) Unwrap() error { return e.Cause }

// VerificationError is returned when a signature on a device key or a
// one-time key fails to verify. The offending key is not stored;
// other entries in the same response are still processed.
type VerificationError struct {
	UserID   string
	DeviceID string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("e2ee: signature verification failed for %s/%s", e.UserID, e.DeviceID)
}

// FormatError is returned when incoming JSON fails envelope
// validation. The event is dropped; the driver is expected to log it.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("e2ee: malformed envelope: %s: %s", e.Field, e.Reason)
}

// GroupEncryptionError is returned when decrypting an inbound Megolm
// event for which no matching inbound group session is known. The
// driver may request the room key from the sender.
type GroupEncryptionError struct {
	RoomID    string
	SessionID string
}

func (e *GroupEncryptionError) Error() string {
	return fmt.Sprintf("e2ee: no inbound group session %s in room %s", e.SessionID, e.RoomID)
}

func deviceKeyList(devices []device.Key) string {
	parts := make([]string, len(devices))
	for i, d := range devices {
		parts[i] = fmt.Sprintf("%s/%s", d.UserID.String(), d.DeviceID)
	}
	return strings.Join(parts, ", ")
}
