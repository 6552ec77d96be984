package e2ee

import (
	"encoding/json"
	"time"
)

// signedCurve25519Algorithm is the key under which a Matrix server
// reports its held one-time key count in device_one_time_keys_count.
const signedCurve25519Algorithm = "signed_curve25519"

// olmToDeviceContent is the content of an "m.room.encrypted" to-device
// event (spec §6 "Encrypted room event envelope (Olm)").
type olmToDeviceContent struct {
	Algorithm  string                    `json:"algorithm"`
	SenderKey  string                    `json:"sender_key"`
	Ciphertext map[string]CiphertextPart `json:"ciphertext"`
}

// HandleSync consumes a /sync response per spec §6: every to-device
// event is decrypted and dispatched, and the server-reported one-time
// key count is recorded for ShouldReplenishOneTimeKeys. A bad
// to-device event is recorded in the result rather than aborting the
// rest of the batch.
func (e *Engine) HandleSync(resp SyncResponse, now time.Time) SyncResult {
	result := SyncResult{}
	for _, event := range resp.ToDeviceEvents {
		if err := e.HandleToDeviceEvent(event, now); err != nil {
			result.Rejected = append(result.Rejected, err)
		}
	}
	if count, ok := resp.DeviceOneTimeKeysCount[signedCurve25519Algorithm]; ok {
		e.oneTimeKeysRemaining = &count
	}
	return result
}

// HandleToDeviceEvent decrypts and dispatches a single to-device
// event. Per spec §4.6, a to-device event wraps Olm ciphertext,
// authenticated by matching the claimed sender's curve25519, and is
// dispatched by the decrypted inner event's type. Events of a type or
// algorithm this engine doesn't handle are silently ignored, not
// errors: a driver forwards everything in to_device.events, and not
// every inner type needs engine-level handling.
func (e *Engine) HandleToDeviceEvent(event ToDeviceEvent, now time.Time) error {
	if event.Type != "m.room.encrypted" {
		return nil
	}
	raw, err := json.Marshal(event.Content)
	if err != nil {
		return err
	}
	var content olmToDeviceContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return &FormatError{Field: "content", Reason: "malformed encrypted to-device content"}
	}
	if content.Algorithm != AlgorithmOlmV1 {
		return nil
	}
	part, ok := content.Ciphertext[e.account.Curve25519Public()]
	if !ok {
		return nil
	}

	inner, err := e.DecryptPairwise(content.SenderKey, part.Body, now)
	if err != nil {
		return err
	}

	switch inner.Type {
	case EventTypeRoomKey:
		return e.HandleRoomKeyEvent(content.SenderKey, inner)
	default:
		return nil
	}
}
