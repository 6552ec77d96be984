package e2ee

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/megolm"
)

// roomKeyContent is the inner content of an "m.room_key" to-device
// event: the material needed to build a matching InboundGroupSession.
type roomKeyContent struct {
	Algorithm        string `json:"algorithm"`
	RoomID           string `json:"room_id"`
	SessionID        string `json:"session_id"`
	SigningPublicKey string `json:"signing_public_key"` // base64 ed25519
	ChainKey         string `json:"chain_key"`          // base64
	ChainIndex       uint32 `json:"chain_index"`
}

// EnsureOutboundGroupSession returns the room's current outbound
// Megolm session, creating (and sharing-pending) a fresh one if none
// exists or the current one has expired. A caller that creates a new
// session here must re-run ShareGroupSession before encrypting, since
// SharedWith resets to empty on every new session.
func (e *Engine) EnsureOutboundGroupSession(roomID string, now time.Time) (*megolm.OutboundGroupSession, bool, error) {
	if existing, ok := e.outbound.Get(roomID); ok && !existing.Expired(now) {
		return existing, false, nil
	}
	session, err := e.createOutboundGroupSession(roomID, now)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// createOutboundGroupSession generates a fresh outbound session for
// roomID and installs the matching inbound session for the local
// device, per spec §4.6 "create_outbound_group_session".
func (e *Engine) createOutboundGroupSession(roomID string, now time.Time) (*megolm.OutboundGroupSession, error) {
	out, err := megolm.NewOutboundGroupSession(roomID, now)
	if err != nil {
		return nil, err
	}
	localCurve := e.account.Curve25519Public()
	localEd25519 := e.account.Ed25519Public()
	in, err := megolm.NewInboundGroupSession(roomID, localCurve, localEd25519, out.SessionID, out.SessionKey())
	if err != nil {
		return nil, err
	}

	e.outbound.Set(out)
	e.inbound.Add(in, roomID, localCurve)

	if err := e.persist.SaveInboundGroupSession(in); err != nil {
		return nil, err
	}
	return out, nil
}

// EncryptGroupMessage encrypts content under roomID's current
// outbound session, which the caller must have ensured exists and is
// unexpired (EnsureOutboundGroupSession). It increments the session's
// message count, which the caller is responsible for serializing
// against concurrent callers for the same room (spec §5).
func (e *Engine) EncryptGroupMessage(roomID string, content []byte) (*GroupMessageEnvelope, error) {
	session, ok := e.outbound.Get(roomID)
	if !ok {
		return nil, ErrNoOutboundGroupSession
	}
	msg, err := session.Encrypt(content)
	if err != nil {
		return nil, err
	}
	return &GroupMessageEnvelope{
		Algorithm:  AlgorithmMegolmV1,
		SenderKey:  e.account.Curve25519Public(),
		Ciphertext: msg.Encode(),
		SessionID:  msg.SessionID,
		DeviceID:   e.cfg.DeviceID,
	}, nil
}

// ShareGroupSession implements spec §4.6's share_group_session: trust
// gate, then missing-session gate, both evaluated against the
// recipient list before any new outbound/inbound group session is
// created or persisted. Per spec §7, a rejected share must leave no
// state mutated — so a brand-new room's session is only created once
// both gates have already passed. Devices already recorded in
// SharedWith are skipped (idempotence).
func (e *Engine) ShareGroupSession(roomID string, recipientUserIDs []string, now time.Time) (*ToDevicePayload, error) {
	existing, hasExisting := e.outbound.Get(roomID)

	var targets []device.Device
	var untrusted []device.Key
	var missingSession []device.Key

	for _, userIDStr := range recipientUserIDs {
		userID, err := identity.ParseUserID(userIDStr)
		if err != nil {
			continue
		}
		for _, d := range e.devices.ActiveUserDevices(userID) {
			switch d.TrustState {
			case device.TrustBlacklisted:
				continue
			case device.TrustVerified:
				// sharable
			case device.TrustIgnored:
				if !e.cfg.ShareWithIgnoredDevices {
					continue
				}
			default:
				untrusted = append(untrusted, d.Ed25519Key())
				continue
			}
			// A room with no existing outbound session has shared
			// with nobody yet, so every sharable device is a target.
			if hasExisting && existing.HasShared(userIDStr, string(d.DeviceID)) {
				continue
			}
			targets = append(targets, d)
		}
	}

	if len(untrusted) > 0 {
		return nil, &OlmTrustError{RoomID: roomID, Devices: untrusted}
	}

	for _, d := range targets {
		if _, ok := e.sessions.Get(d.Curve25519); !ok {
			missingSession = append(missingSession, d.Curve25519Key())
		}
	}
	if len(missingSession) > 0 {
		return nil, &EncryptionError{Reason: "missing sessions", Devices: missingSession}
	}

	session := existing
	if !hasExisting {
		var err error
		session, err = e.createOutboundGroupSession(roomID, now)
		if err != nil {
			return nil, err
		}
	}

	return e.buildSharePayload(roomID, targets, session)
}

func (e *Engine) buildSharePayload(roomID string, targets []device.Device, session *megolm.OutboundGroupSession) (*ToDevicePayload, error) {
	payload := &ToDevicePayload{Messages: make(map[string]map[string]PairwiseMessage)}
	for _, d := range targets {
		pairwise, ok := e.sessions.Get(d.Curve25519)
		if !ok {
			continue
		}
		content, err := json.Marshal(roomKeyContent{
			Algorithm:        AlgorithmMegolmV1,
			RoomID:           roomID,
			SessionID:        session.SessionID,
			SigningPublicKey: base64.RawStdEncoding.EncodeToString(session.SessionKey().SigningPublicKey),
			ChainKey:         base64.RawStdEncoding.EncodeToString(session.SessionKey().ChainKey),
			ChainIndex:       session.SessionKey().Index,
		})
		if err != nil {
			return nil, err
		}

		inner, err := e.wrapOlmEvent(d.UserID.String(), string(d.DeviceID), d.Ed25519, EventTypeRoomKey, content)
		if err != nil {
			return nil, err
		}
		msg, err := pairwise.EncryptMessage(inner)
		if err != nil {
			return nil, err
		}
		if err := e.persist.SaveSession(d.Curve25519, pairwise); err != nil {
			return nil, err
		}

		msgJSON, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}

		if payload.Messages[d.UserID.String()] == nil {
			payload.Messages[d.UserID.String()] = make(map[string]PairwiseMessage)
		}
		payload.Messages[d.UserID.String()][string(d.DeviceID)] = PairwiseMessage{
			Algorithm: AlgorithmOlmV1,
			SenderKey: e.account.Curve25519Public(),
			Ciphertext: map[string]CiphertextPart{
				d.Curve25519: {
					Type: int(msg.Type),
					Body: base64.RawStdEncoding.EncodeToString(msgJSON),
				},
			},
		}
		session.MarkShared(d.UserID.String(), string(d.DeviceID))
	}

	return payload, nil
}

// wrapOlmEvent builds the canonical Olm event envelope (spec §4.6
// step 3's fields) for an outgoing m.room_key to a specific recipient
// device.
func (e *Engine) wrapOlmEvent(recipientUserID, recipientDeviceID, recipientEd25519 string, eventType string, content []byte) ([]byte, error) {
	localUser, err := e.localUserID()
	if err != nil {
		return nil, err
	}
	var decodedContent map[string]interface{}
	if err := json.Unmarshal(content, &decodedContent); err != nil {
		return nil, err
	}
	return json.Marshal(OlmEventEnvelope{
		Sender:        localUser.String(),
		SenderDevice:  e.cfg.DeviceID,
		Keys:          map[string]string{"ed25519": e.account.Ed25519Public()},
		Recipient:     recipientUserID,
		RecipientKeys: map[string]string{"ed25519": recipientEd25519},
		Type:          eventType,
		Content:       decodedContent,
	})
}

// HandleRoomKeyEvent installs an inbound group session from an already
// decrypted and validated "m.room_key" event, per spec §4.6
// "Room-key reception". senderCurve25519 is the authenticated outer
// sender; it must match the device owning inner.Keys["ed25519"].
// Duplicate (room, sender_curve, session_id) is a no-op.
func (e *Engine) HandleRoomKeyEvent(senderCurve25519 string, inner *OlmEventEnvelope) error {
	if inner.Type != EventTypeRoomKey {
		return &FormatError{Field: "type", Reason: "not m.room_key"}
	}
	raw, err := json.Marshal(inner.Content)
	if err != nil {
		return err
	}
	var rk roomKeyContent
	if err := json.Unmarshal(raw, &rk); err != nil {
		return &FormatError{Field: "content", Reason: "malformed room_key content"}
	}

	senderUser, err := identity.ParseUserID(inner.Sender)
	if err != nil {
		return &FormatError{Field: "sender", Reason: "invalid user id"}
	}
	senderDevice, ok := e.devices.Get(senderUser, identity.DeviceID(inner.SenderDevice))
	if !ok || senderDevice.Curve25519 != senderCurve25519 || senderDevice.Ed25519 != inner.Keys["ed25519"] {
		return &FormatError{Field: "sender_device", Reason: "does not own the authenticated sender curve25519"}
	}

	if e.inbound.Contains(rk.RoomID, senderCurve25519, rk.SessionID) {
		return nil
	}

	signingKey, err := base64.RawStdEncoding.DecodeString(rk.SigningPublicKey)
	if err != nil {
		return &FormatError{Field: "signing_public_key", Reason: "invalid base64"}
	}
	chainKey, err := base64.RawStdEncoding.DecodeString(rk.ChainKey)
	if err != nil {
		return &FormatError{Field: "chain_key", Reason: "invalid base64"}
	}

	session, err := megolm.NewInboundGroupSession(rk.RoomID, senderCurve25519, senderDevice.Ed25519, rk.SessionID, megolm.SessionKeyExport{
		SigningPublicKey: signingKey,
		ChainKey:         chainKey,
		Index:            rk.ChainIndex,
	})
	if err != nil {
		return err
	}

	e.inbound.Add(session, rk.RoomID, senderCurve25519)
	return e.persist.SaveInboundGroupSession(session)
}

// DecryptGroupMessage decrypts an inbound Megolm room event envelope.
func (e *Engine) DecryptGroupMessage(roomID string, env *GroupMessageEnvelope) ([]byte, error) {
	session, ok := e.inbound.Get(roomID, env.SenderKey, env.SessionID)
	if !ok {
		return nil, &GroupEncryptionError{RoomID: roomID, SessionID: env.SessionID}
	}
	msg, err := megolm.DecodeMessage(env.SessionID, env.Ciphertext)
	if err != nil {
		return nil, err
	}
	return session.Decrypt(msg)
}
