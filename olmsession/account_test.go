package olmsession

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"
)

func TestAccountOneTimeKeyLifecycle(t *testing.T) {
	acct, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}

	if acct.OneTimeKeysRemaining() != 0 {
		t.Fatalf("fresh account should have no one-time keys")
	}

	keys, err := acct.GenerateOneTimeKeys(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 5 {
		t.Fatalf("got %d keys, want 5", len(keys))
	}
	if acct.OneTimeKeysRemaining() != 5 {
		t.Fatalf("remaining = %d, want 5", acct.OneTimeKeysRemaining())
	}

	acct.MarkKeysAsPublished()
	if acct.OneTimeKeysRemaining() != 0 {
		t.Fatalf("published keys should not count as remaining")
	}

	if _, err := acct.TakeOneTimeKey(keys[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := acct.TakeOneTimeKey(keys[0].ID); err != ErrNoOneTimeKey {
		t.Fatalf("expected ErrNoOneTimeKey for re-claim, got %v", err)
	}
}

func TestAccountCreateSessionRoundTrip(t *testing.T) {
	alice, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}

	bobKeys, err := bob.GenerateOneTimeKeys(1)
	if err != nil {
		t.Fatal(err)
	}
	bob.MarkKeysAsPublished()

	bobOTKPublic, err := base64.RawStdEncoding.DecodeString(bobKeys[0].ID)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	aliceSession, ephemeral, err := alice.CreateOutboundSession(
		bob.CurveKey.PublicKey().Bytes(), bobOTKPublic, now)
	if err != nil {
		t.Fatal(err)
	}

	bobSession, err := bob.CreateInboundSession(
		alice.CurveKey.PublicKey().Bytes(), ephemeral, bobKeys[0].ID, now)
	if err != nil {
		t.Fatal(err)
	}

	if aliceSession.SessionID != bobSession.SessionID {
		t.Fatalf("session ID mismatch: alice=%s bob=%s", aliceSession.SessionID, bobSession.SessionID)
	}

	plaintext := []byte("hello from alice")
	envelope, err := aliceSession.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := bobSession.Decrypt(envelope)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestAccountEncryptMessageFirstIsPreKey(t *testing.T) {
	alice, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	bobKeys, err := bob.GenerateOneTimeKeys(1)
	if err != nil {
		t.Fatal(err)
	}
	bob.MarkKeysAsPublished()
	bobOTKPublic, err := base64.RawStdEncoding.DecodeString(bobKeys[0].ID)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	session, _, err := alice.CreateOutboundSession(bob.CurveKey.PublicKey().Bytes(), bobOTKPublic, now)
	if err != nil {
		t.Fatal(err)
	}

	first, err := session.EncryptMessage([]byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Type != MessageTypePreKey {
		t.Fatalf("first message type = %v, want MessageTypePreKey", first.Type)
	}
	if first.IdentityKey == "" || first.EphemeralKey == "" || first.OneTimeKeyID == "" {
		t.Fatalf("first message missing bootstrap fields: %+v", first)
	}

	second, err := session.EncryptMessage([]byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if second.Type != MessageTypeNormal {
		t.Fatalf("second message type = %v, want MessageTypeNormal", second.Type)
	}
}

func TestAccountPickleRoundTrip(t *testing.T) {
	acct, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := acct.GenerateOneTimeKeys(3); err != nil {
		t.Fatal(err)
	}

	data, err := acct.Pickle("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}

	restored, err := UnpickleAccount("correct horse battery staple", data)
	if err != nil {
		t.Fatal(err)
	}

	if restored.Ed25519Public() != acct.Ed25519Public() {
		t.Errorf("ed25519 public key mismatch after unpickle")
	}
	if restored.Curve25519Public() != acct.Curve25519Public() {
		t.Errorf("curve25519 public key mismatch after unpickle")
	}
	if restored.OneTimeKeysRemaining() != 3 {
		t.Errorf("remaining one-time keys = %d, want 3", restored.OneTimeKeysRemaining())
	}
}

func TestAccountPickleWrongPassphrase(t *testing.T) {
	acct, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	data, err := acct.Pickle("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnpickleAccount("wrong passphrase", data); err != ErrBadPickle {
		t.Fatalf("expected ErrBadPickle, got %v", err)
	}
}
