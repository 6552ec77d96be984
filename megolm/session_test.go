package megolm

import (
	"bytes"
	"testing"
	"time"
)

func newTestPair(t *testing.T) (*OutboundGroupSession, *InboundGroupSession) {
	t.Helper()
	out, err := NewOutboundGroupSession("!room:example.org", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	in, err := NewInboundGroupSession("!room:example.org", "sender-curve", "sender-ed25519", out.SessionID, out.SessionKey())
	if err != nil {
		t.Fatal(err)
	}
	return out, in
}

func TestGroupSessionEncryptDecrypt(t *testing.T) {
	out, in := newTestPair(t)

	msg, err := out.Encrypt([]byte("hello room"))
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := in.Decrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, []byte("hello room")) {
		t.Fatalf("decrypted = %q, want %q", plaintext, "hello room")
	}
}

func TestGroupSessionOutOfOrderUsesCacheNotRewind(t *testing.T) {
	out, in := newTestPair(t)

	var msgs []*Message
	for i := 0; i < 5; i++ {
		msg, err := out.Encrypt([]byte("msg"))
		if err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, msg)
	}

	if _, err := in.Decrypt(msgs[4]); err != nil {
		t.Fatalf("decrypt index 4: %v", err)
	}
	if in.ratchet.index != 5 {
		t.Fatalf("ratchet index = %d, want 5", in.ratchet.index)
	}

	if _, err := in.Decrypt(msgs[1]); err != nil {
		t.Fatalf("decrypt earlier index from cache: %v", err)
	}
	if in.ratchet.index != 5 {
		t.Fatalf("decrypting a cached earlier index must not advance the ratchet, got %d", in.ratchet.index)
	}
}

func TestGroupSessionRewindWithoutCacheFails(t *testing.T) {
	out, in := newTestPair(t)

	for i := 0; i < 3; i++ {
		if _, err := out.Encrypt([]byte("msg")); err != nil {
			t.Fatal(err)
		}
	}

	msg, err := out.Encrypt([]byte("the one we keep"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.Decrypt(msg); err != nil {
		t.Fatal(err)
	}

	// Index 0 was skipped over during the jump to index 3 and would
	// normally sit in the cache; evict it to simulate an index that
	// fell out of the bounded replay window.
	in.cache.Remove(uint32(0))

	if _, err := in.messageKeyForIndex(0); err != ErrRatchetRewind {
		t.Fatalf("expected ErrRatchetRewind, got %v", err)
	}
}

func TestGroupSessionRotation(t *testing.T) {
	out, err := NewOutboundGroupSession("!room:example.org", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Expired(time.Now()) {
		t.Fatal("fresh session should not be expired")
	}

	for i := 0; i < RotationMessageCount; i++ {
		if _, err := out.Encrypt([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if !out.Expired(time.Now()) {
		t.Fatal("session should be expired after reaching the message count threshold")
	}
}

func TestGroupSessionAgeRotation(t *testing.T) {
	out, err := NewOutboundGroupSession("!room:example.org", time.Now().Add(-8*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Expired(time.Now()) {
		t.Fatal("session older than the rotation age should be expired")
	}
}

func TestGroupSessionSharedWithIdempotent(t *testing.T) {
	out, err := NewOutboundGroupSession("!room:example.org", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !out.MarkShared("@alice:example.org", "DEVICE1") {
		t.Fatal("first mark should report newly shared")
	}
	if out.MarkShared("@alice:example.org", "DEVICE1") {
		t.Fatal("re-marking the same device should report already shared")
	}
	if !out.HasShared("@alice:example.org", "DEVICE1") {
		t.Fatal("HasShared should reflect the recorded share")
	}
}

func TestGroupSessionPickleRoundTrip(t *testing.T) {
	out, in := newTestPair(t)
	if _, err := out.Encrypt([]byte("first")); err != nil {
		t.Fatal(err)
	}

	outData, err := out.Pickle("pickle pass")
	if err != nil {
		t.Fatal(err)
	}
	restoredOut, err := UnpickleOutboundGroupSession("pickle pass", outData)
	if err != nil {
		t.Fatal(err)
	}
	if restoredOut.SessionID != out.SessionID {
		t.Errorf("session ID mismatch after unpickle")
	}

	msg, err := restoredOut.Encrypt([]byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := in.Decrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(plaintext) != "second" {
		t.Errorf("decrypted = %q, want %q", plaintext, "second")
	}

	inData, err := in.Pickle("pickle pass")
	if err != nil {
		t.Fatal(err)
	}
	restoredIn, err := UnpickleInboundGroupSession("pickle pass", inData)
	if err != nil {
		t.Fatal(err)
	}
	if restoredIn.SessionID != in.SessionID {
		t.Errorf("inbound session ID mismatch after unpickle")
	}
}
