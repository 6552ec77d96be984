package olmsession

import (
	"bytes"
	"testing"
	"time"
)

func TestSessionPickleRoundTrip(t *testing.T) {
	alice, bob := setupAliceBobRatchets(t)
	now := time.Now().Truncate(time.Second)

	session := &Session{
		SessionID:    sessionIDFromRatchetKey(alice.DHs.PublicKey().Bytes()),
		CreationTime: now,
		ratchet:      alice,
	}

	envelope, err := session.Encrypt([]byte("before pickle"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Decrypt(mustHeader(t, envelope), envelope[headerSize:]); err != nil {
		t.Fatal(err)
	}

	data, err := session.Pickle()
	if err != nil {
		t.Fatal(err)
	}

	restored, err := UnpickleSession(data)
	if err != nil {
		t.Fatal(err)
	}

	if restored.SessionID != session.SessionID {
		t.Errorf("session ID = %q, want %q", restored.SessionID, session.SessionID)
	}
	if !restored.CreationTime.Equal(session.CreationTime) {
		t.Errorf("creation time = %v, want %v", restored.CreationTime, session.CreationTime)
	}

	envelope2, err := restored.Encrypt([]byte("after pickle"))
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := bob.Decrypt(mustHeader(t, envelope2), envelope2[headerSize:])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, []byte("after pickle")) {
		t.Errorf("decrypted = %q, want %q", decrypted, "after pickle")
	}
}

func mustHeader(t *testing.T, envelope []byte) *Header {
	t.Helper()
	var h Header
	if err := h.UnmarshalBinary(envelope[:headerSize]); err != nil {
		t.Fatal(err)
	}
	return &h
}
