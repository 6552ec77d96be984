package e2ee

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/olmsession"
)

// CreateSession builds an outbound Olm session against a claimed
// one-time key and installs it in the pairwise store under
// peerCurve25519. Per spec §4.6, an existing session is never
// replaced: the new session simply coexists, and becomes active only
// if its session ID sorts earlier than the current one.
func (e *Engine) CreateSession(peerCurve25519 string, oneTimeKey OneTimeKeyEntry, now time.Time) (*olmsession.Session, error) {
	peerCurveBytes, err := base64.RawStdEncoding.DecodeString(peerCurve25519)
	if err != nil {
		return nil, &FormatError{Field: "peer_curve25519", Reason: "invalid base64"}
	}
	otkBytes, err := base64.RawStdEncoding.DecodeString(oneTimeKey.Key)
	if err != nil {
		return nil, &FormatError{Field: "one_time_key", Reason: "invalid base64"}
	}

	session, _, err := e.account.CreateOutboundSession(peerCurveBytes, otkBytes, now)
	if err != nil {
		return nil, err
	}

	e.sessions.Add(peerCurve25519, session)
	if err := e.persist.SaveSession(peerCurve25519, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DecryptPairwise implements spec §4.6's decryption protocol for a
// single pairwise ciphertext from senderCurve25519. body is the JSON
// form of an olmsession.Message, base64-encoded as it travels in the
// to-device ciphertext map's "body" field. On success it returns the
// decoded, envelope-validated inner event.
func (e *Engine) DecryptPairwise(senderCurve25519 string, body string, now time.Time) (*OlmEventEnvelope, error) {
	raw, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return nil, &FormatError{Field: "body", Reason: "invalid base64"}
	}
	var msg olmsession.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &FormatError{Field: "body", Reason: "not a valid olm message"}
	}
	envelope, err := msg.Body()
	if err != nil {
		return nil, &FormatError{Field: "body.ciphertext", Reason: "invalid base64"}
	}

	plaintext, newSession, err := e.decryptPairwiseEnvelope(senderCurve25519, &msg, envelope, now)
	if err != nil {
		return nil, &OlmSessionError{SenderCurve25519: senderCurve25519, Cause: err}
	}

	var inner OlmEventEnvelope
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, &FormatError{Field: "content", Reason: "not valid JSON"}
	}
	if err := e.validateOlmEnvelope(senderCurve25519, &inner); err != nil {
		return nil, err
	}

	if newSession != nil {
		e.sessions.Add(senderCurve25519, newSession)
		if err := e.persist.SaveSession(senderCurve25519, newSession); err != nil {
			return nil, err
		}
	}
	return &inner, nil
}

// decryptPairwiseEnvelope tries existing sessions for senderCurve25519
// in order; for a pre-key message it additionally tries creating a new
// inbound session if none of the existing ones decrypt. It returns the
// newly created session, if any, separately so the caller only stores
// it after the full envelope has validated.
func (e *Engine) decryptPairwiseEnvelope(senderCurve25519 string, msg *olmsession.Message, envelope []byte, now time.Time) ([]byte, *olmsession.Session, error) {
	for _, session := range e.sessions.Sessions(senderCurve25519) {
		if plaintext, err := session.Decrypt(envelope); err == nil {
			return plaintext, nil, nil
		}
	}

	if msg.Type != olmsession.MessageTypePreKey {
		return nil, nil, olmsession.ErrInvalidMessage
	}

	senderCurveBytes, err := base64.RawStdEncoding.DecodeString(senderCurve25519)
	if err != nil {
		return nil, nil, err
	}
	ephemeral, err := base64.RawStdEncoding.DecodeString(msg.EphemeralKey)
	if err != nil {
		return nil, nil, err
	}

	session, err := e.account.CreateInboundSession(senderCurveBytes, ephemeral, msg.OneTimeKeyID, now)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := session.Decrypt(envelope)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, session, nil
}

// validateOlmEnvelope enforces spec §4.6 step 3's four checks on the
// inner Olm event: the recipient and the recipient's ed25519 must match
// the local account, the claimed sender device must be known and own
// senderCurve25519, and keys.ed25519 must match that device's ed25519.
func (e *Engine) validateOlmEnvelope(senderCurve25519 string, inner *OlmEventEnvelope) error {
	localUser, err := e.localUserID()
	if err != nil {
		return err
	}
	if inner.Recipient != localUser.String() {
		return &FormatError{Field: "recipient", Reason: "does not match local user"}
	}
	if inner.RecipientKeys["ed25519"] != e.account.Ed25519Public() {
		return &FormatError{Field: "recipient_keys.ed25519", Reason: "does not match local identity key"}
	}

	senderUser, err := identity.ParseUserID(inner.Sender)
	if err != nil {
		return &FormatError{Field: "sender", Reason: "invalid user id"}
	}
	senderDevice, ok := e.devices.Get(senderUser, identity.DeviceID(inner.SenderDevice))
	if !ok || senderDevice.Curve25519 != senderCurve25519 {
		return &FormatError{Field: "sender_device", Reason: "unknown device for claimed sender curve25519"}
	}
	if inner.Keys["ed25519"] != senderDevice.Ed25519 {
		return &FormatError{Field: "keys.ed25519", Reason: "does not match claimed sender device"}
	}
	return nil
}
