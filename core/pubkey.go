package core

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/tolelom/gamescrow/crypto"
)

// PubkeySize is the byte length of an account address.
const PubkeySize = crypto.PublicKeySize

// Pubkey is a 32-byte account address. Its text form is base58.
type Pubkey [PubkeySize]byte

// SystemProgramID owns every freshly funded account. It is the all-zero key.
var SystemProgramID = Pubkey{}

// ProgramID derives a deterministic program address from a name.
func ProgramID(name string) Pubkey {
	return Pubkey(crypto.HashBytes([]byte("program:"), []byte(name)))
}

// PubkeyFromBytes copies b into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeySize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// PubkeyFromString decodes a base58 address.
func PubkeyFromString(s string) (Pubkey, error) {
	b := base58.Decode(s)
	if len(b) == 0 && s != "" {
		return Pubkey{}, fmt.Errorf("invalid base58 pubkey %q", s)
	}
	return PubkeyFromBytes(b)
}

// MustPubkey is PubkeyFromString for constants; it panics on bad input.
func MustPubkey(s string) Pubkey {
	p, err := PubkeyFromString(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PubkeyOf returns the address of a signing identity.
func PubkeyOf(priv crypto.PrivateKey) Pubkey {
	return Pubkey(priv.PublicKey())
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

// IsZero reports whether p is the all-zero key.
func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pubkey) UnmarshalText(text []byte) error {
	v, err := PubkeyFromString(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
