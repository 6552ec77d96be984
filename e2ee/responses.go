package e2ee

// DeviceKeysEntry is one device's entry in a keys-query response,
// shaped per spec §6 "Consumed": algorithms, the four identifying
// fields, a key map keyed "<algorithm>:<device_id>", and a signatures
// map keyed by user ID then the same "<algorithm>:<device_id>" form.
type DeviceKeysEntry struct {
	UserID     string
	DeviceID   string
	Algorithms []string
	Keys       map[string]string
	Signatures map[string]map[string]string

	// Raw is the untouched decoded JSON object this entry was parsed
	// from, kept around so the canonical-JSON self-signature can be
	// recomputed exactly as received rather than re-serialized from
	// the typed fields (whose map iteration order encoding/json would
	// re-sort identically, but re-deriving from Raw avoids depending
	// on that).
	Raw map[string]interface{}
}

// KeysQueryResponse is the decoded form of a /keys/query response.
type KeysQueryResponse struct {
	DeviceKeys map[string]map[string]DeviceKeysEntry // user_id -> device_id -> entry
	Failures   map[string]interface{}
}

// KeysQueryResult reports the outcome of HandleKeysQuery: whether the
// registry changed and which entries were rejected for a bad
// signature, per spec §8 scenario 3's "changed" marker.
type KeysQueryResult struct {
	Changed  bool
	Rejected []VerificationError
}

// OneTimeKeyEntry is one claimed one-time key: its base64 public key
// plus the signatures authenticating it under the owning device's
// ed25519 identity key.
type OneTimeKeyEntry struct {
	KeyID      string // e.g. "signed_curve25519:AAAAAQ"
	Key        string
	Signatures map[string]map[string]string
	Raw        map[string]interface{}
}

// KeysClaimResponse is the decoded form of a /keys/claim response.
type KeysClaimResponse struct {
	OneTimeKeys map[string]map[string]OneTimeKeyEntry // user_id -> device_id -> key
	Failures    map[string]interface{}
}

// ToDeviceEvent is one entry of sync's to_device.events array, handed
// to HandleToDeviceEvent for decryption and dispatch by inner type.
type ToDeviceEvent struct {
	Sender  string
	Type    string
	Content map[string]interface{}
}

// SyncResponse is the decoded subset of a /sync response the engine
// consumes, per spec §6 "Sync": everything else in a sync response
// (rooms, presence, account_data, ...) is the driver's concern, not
// the engine's.
type SyncResponse struct {
	ToDeviceEvents         []ToDeviceEvent
	DeviceOneTimeKeysCount map[string]int
}

// SyncResult reports which to-device events HandleSync failed to
// dispatch, mirroring KeysQueryResult's per-entry rejection list: one
// bad event doesn't abort the rest of the batch.
type SyncResult struct {
	Rejected []error
}

// OlmEventEnvelope is the inner plaintext of a decrypted pairwise Olm
// ciphertext, validated per spec §4.6 "Decryption protocol" step 3.
type OlmEventEnvelope struct {
	Sender        string                 `json:"sender"`
	SenderDevice  string                 `json:"sender_device"`
	Keys          map[string]string      `json:"keys"`
	Recipient     string                 `json:"recipient"`
	RecipientKeys map[string]string      `json:"recipient_keys"`
	Type          string                 `json:"type"`
	Content       map[string]interface{} `json:"content"`
}

// ToDevicePayload is the produced to-device map: user_id -> device_id
// -> per-recipient encrypted message, per spec §6 "Produced".
type ToDevicePayload struct {
	Messages map[string]map[string]PairwiseMessage
}

// PairwiseMessage is one recipient's encrypted Olm envelope as placed
// in a to-device payload.
type PairwiseMessage struct {
	Algorithm  string                    `json:"algorithm"`
	SenderKey  string                    `json:"sender_key"`
	Ciphertext map[string]CiphertextPart `json:"ciphertext"`
}

// CiphertextPart is the {type, body} pair keyed by peer curve25519 in
// a PairwiseMessage's ciphertext map.
type CiphertextPart struct {
	Type int    `json:"type"`
	Body string `json:"body"`
}

// GroupMessageEnvelope is the wire form of an outbound Megolm message,
// per spec §6 "Produced".
type GroupMessageEnvelope struct {
	Algorithm  string `json:"algorithm"`
	SenderKey  string `json:"sender_key"`
	Ciphertext string `json:"ciphertext"`
	SessionID  string `json:"session_id"`
	DeviceID   string `json:"device_id"`
}

const (
	AlgorithmOlmV1    = "m.olm.v1.curve25519-aes-sha2"
	AlgorithmMegolmV1 = "m.megolm.v1.aes-sha2"

	EventTypeRoomKey = "m.room_key"
)
