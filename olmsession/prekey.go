package olmsession

import "crypto/ecdh"

var preKeySalt = make([]byte, 32) // 32 zero bytes

// preKeyPad is prepended to the DH concatenation so that an identity
// key compromise alone cannot be leveraged to compute a past shared
// secret without also knowing an ephemeral or one-time private key.
var preKeyPad = func() []byte {
	p := make([]byte, 32)
	for i := range p {
		p[i] = 0xFF
	}
	return p
}()

// PreKeyAgreementResult is the outcome of running the initiator side
// of pre-key agreement: the shared secret to seed a ratchet plus the
// ephemeral key the peer needs to derive the same secret.
type PreKeyAgreementResult struct {
	SharedSecret  []byte
	EphemeralPub  []byte
	UsedOneTimeID string
}

// AgreePreKeyAsInitiator runs the triple-DH pre-key agreement for the
// side that claimed a one-time key from the server (Alice):
//
//	DH1 = DH(localIdentity,  remoteOneTimeKey)
//	DH2 = DH(localEphemeral, remoteIdentity)
//	DH3 = DH(localEphemeral, remoteOneTimeKey)
//	secret = HKDF(salt=0x00*32, 0xFF*32 || DH1 || DH2 || DH3, info)
func AgreePreKeyAsInitiator(localIdentity *ecdh.PrivateKey, remoteIdentity, remoteOneTimeKey []byte) (*PreKeyAgreementResult, error) {
	ephemeral, err := GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}

	dh1, err := x25519DH(localIdentity, remoteOneTimeKey)
	if err != nil {
		return nil, err
	}
	dh2, err := x25519DH(ephemeral, remoteIdentity)
	if err != nil {
		return nil, err
	}
	dh3, err := x25519DH(ephemeral, remoteOneTimeKey)
	if err != nil {
		return nil, err
	}

	ikm := make([]byte, 0, len(preKeyPad)+len(dh1)+len(dh2)+len(dh3))
	ikm = append(ikm, preKeyPad...)
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)

	secret, err := hkdfSHA256(preKeySalt, ikm, []byte("matrix-olm pre-key agreement"), 32)
	if err != nil {
		return nil, err
	}

	return &PreKeyAgreementResult{
		SharedSecret: secret,
		EphemeralPub: ephemeral.PublicKey().Bytes(),
	}, nil
}

// AgreePreKeyAsResponder recomputes the same shared secret for the
// side that published the claimed one-time key (Bob), from the
// sender's identity key and ephemeral key carried in the pre-key
// message.
func AgreePreKeyAsResponder(localOneTimeKey *ecdh.PrivateKey, localIdentity *ecdh.PrivateKey, remoteIdentity, remoteEphemeral []byte) ([]byte, error) {
	dh1, err := x25519DH(localOneTimeKey, remoteIdentity)
	if err != nil {
		return nil, err
	}
	dh2, err := x25519DH(localIdentity, remoteEphemeral)
	if err != nil {
		return nil, err
	}
	dh3, err := x25519DH(localOneTimeKey, remoteEphemeral)
	if err != nil {
		return nil, err
	}

	ikm := make([]byte, 0, len(preKeyPad)+len(dh1)+len(dh2)+len(dh3))
	ikm = append(ikm, preKeyPad...)
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)

	return hkdfSHA256(preKeySalt, ikm, []byte("matrix-olm pre-key agreement"), 32)
}
