package megolm

import (
	"bytes"
	"testing"
)

func TestMessageEncodeDecode(t *testing.T) {
	body := marshalBody(7, bytes.Repeat([]byte{0xAB}, aesNonceSize), []byte("ciphertext"))
	msg := &Message{SessionID: "sess", Index: 7, Body: body, Signature: bytes.Repeat([]byte{0x01}, ed25519SignatureSize)}

	encoded := msg.Encode()
	decoded, err := DecodeMessage("sess", encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Index != 7 {
		t.Errorf("index = %d, want 7", decoded.Index)
	}
	if !bytes.Equal(decoded.Body, body) {
		t.Errorf("body mismatch")
	}
	if !bytes.Equal(decoded.Signature, msg.Signature) {
		t.Errorf("signature mismatch")
	}
}

func TestDecodeMessageInvalidBase64(t *testing.T) {
	if _, err := DecodeMessage("sess", "not valid base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
