package crypto

import (
	"crypto/ed25519"
	"errors"
)

// ErrBadSignature is returned by Verify when a signature does not match.
var ErrBadSignature = errors.New("signature verification failed")

// Sign signs data with the private key.
func Sign(priv PrivateKey, data []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv), data)
}

// Verify checks sig over data against the 32-byte public key.
func Verify(pub [PublicKeySize]byte, data, sig []byte) error {
	if len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig) {
		return ErrBadSignature
	}
	return nil
}
