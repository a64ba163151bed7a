package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// PublicKeySize is the length of an ed25519 public key, which doubles as an
// account address.
const PublicKeySize = ed25519.PublicKeySize

// PrivateKey is a 64-byte ed25519 secret key (seed followed by public key),
// the same encoding keypair files use.
type PrivateKey []byte

// GenerateKey generates a new ed25519 signing identity.
func GenerateKey() (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return PrivateKey(priv), nil
}

// KeyFromSeed derives the signing identity for a 32-byte seed.
func KeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// KeyFromSecret validates a 64-byte secret key encoding and checks that its
// embedded public half matches the one derived from the seed.
func KeyFromSecret(secret []byte) (PrivateKey, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	derived := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	for i := ed25519.SeedSize; i < ed25519.PrivateKeySize; i++ {
		if derived[i] != secret[i] {
			return nil, fmt.Errorf("secret key public half does not match its seed")
		}
	}
	return PrivateKey(derived), nil
}

// PublicKey returns the 32 address bytes of the identity.
func (priv PrivateKey) PublicKey() [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
	return out
}

// Seed returns the 32-byte seed the key was derived from.
func (priv PrivateKey) Seed() []byte {
	return ed25519.PrivateKey(priv).Seed()
}
