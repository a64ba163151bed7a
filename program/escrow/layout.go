package escrow

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
)

// AccountType is the leading tag byte of every program-owned buffer.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = iota
	AccountTypeEscrow
	AccountTypeGame
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeUninitialized:
		return "uninitialized"
	case AccountTypeEscrow:
		return "escrow"
	case AccountTypeGame:
		return "game"
	}
	return "unknown"
}

// AssetSlots is the number of owned and of rented slots in a game account.
const AssetSlots = 20

const (
	// GameAccountSpan is tag + owner + owned + rented.
	GameAccountSpan = 1 + core.PubkeySize + 8*AssetSlots + 8*AssetSlots
	// EscrowAccountSpan is tag + is_taken + three keys + four 8-byte fields.
	EscrowAccountSpan = 1 + 1 + 3*core.PubkeySize + 4*8
)

// GameAccount is a player's asset inventory. A slot value of 0 is empty.
type GameAccount struct {
	Owner  core.Pubkey
	Owned  [AssetSlots]uint64
	Rented [AssetSlots]uint64
}

// EscrowAccount is the record of one conditional exchange. TakerGameAccount
// stays zero and UnixTimestamp stays 0 until the escrow is taken.
type EscrowAccount struct {
	IsTaken                bool
	InitialiserMainAccount core.Pubkey
	InitialiserGameAccount core.Pubkey
	TakerGameAccount       core.Pubkey
	UnixTimestamp          int64
	Amount                 uint64
	Time                   uint64
	AssetID                uint64
}

// TagOf returns the account type stored in buf, or uninitialized for an
// empty buffer.
func TagOf(buf []byte) AccountType {
	if len(buf) == 0 {
		return AccountTypeUninitialized
	}
	return AccountType(buf[0])
}

// EncodeGameAccount serialises g into a fresh GameAccountSpan buffer.
func EncodeGameAccount(g *GameAccount) []byte {
	dst := make([]byte, GameAccountSpan)
	var offset int
	putAccountType(dst, AccountTypeGame, &offset)
	putKey(dst, g.Owner, &offset)
	for _, id := range g.Owned {
		putUint64(dst, id, &offset)
	}
	for _, id := range g.Rented {
		putUint64(dst, id, &offset)
	}
	return dst
}

// DecodeGameAccount parses a game account buffer.
func DecodeGameAccount(src []byte) (*GameAccount, error) {
	if len(src) != GameAccountSpan {
		return nil, errors.Wrapf(ErrLayout, "game account is %d bytes, want %d", len(src), GameAccountSpan)
	}
	var offset int
	var tag AccountType
	getAccountType(src, &tag, &offset)
	if tag != AccountTypeGame {
		return nil, errors.Wrapf(ErrLayout, "expected game account tag, found %s", tag)
	}
	var g GameAccount
	getKey(src, &g.Owner, &offset)
	for i := range g.Owned {
		getUint64(src, &g.Owned[i], &offset)
	}
	for i := range g.Rented {
		getUint64(src, &g.Rented[i], &offset)
	}
	return &g, nil
}

// PackGameAccount writes g into an existing account buffer.
func PackGameAccount(dst []byte, g *GameAccount) error {
	if len(dst) != GameAccountSpan {
		return errors.Wrapf(ErrLayout, "game account buffer is %d bytes, want %d", len(dst), GameAccountSpan)
	}
	copy(dst, EncodeGameAccount(g))
	return nil
}

// EncodeEscrowAccount serialises e into a fresh EscrowAccountSpan buffer.
func EncodeEscrowAccount(e *EscrowAccount) []byte {
	dst := make([]byte, EscrowAccountSpan)
	var offset int
	putAccountType(dst, AccountTypeEscrow, &offset)
	putBool(dst, e.IsTaken, &offset)
	putKey(dst, e.InitialiserMainAccount, &offset)
	putKey(dst, e.InitialiserGameAccount, &offset)
	putKey(dst, e.TakerGameAccount, &offset)
	putUint64(dst, uint64(e.UnixTimestamp), &offset)
	putUint64(dst, e.Amount, &offset)
	putUint64(dst, e.Time, &offset)
	putUint64(dst, e.AssetID, &offset)
	return dst
}

// DecodeEscrowAccount parses an escrow buffer. It rejects a wrong length, a
// wrong tag and an is_taken byte other than 0 or 1.
func DecodeEscrowAccount(src []byte) (*EscrowAccount, error) {
	if len(src) != EscrowAccountSpan {
		return nil, errors.Wrapf(ErrLayout, "escrow account is %d bytes, want %d", len(src), EscrowAccountSpan)
	}
	var offset int
	var tag AccountType
	getAccountType(src, &tag, &offset)
	if tag != AccountTypeEscrow {
		return nil, errors.Wrapf(ErrLayout, "expected escrow tag, found %s", tag)
	}
	var e EscrowAccount
	if err := getBool(src, &e.IsTaken, &offset); err != nil {
		return nil, err
	}
	getKey(src, &e.InitialiserMainAccount, &offset)
	getKey(src, &e.InitialiserGameAccount, &offset)
	getKey(src, &e.TakerGameAccount, &offset)
	var ts uint64
	getUint64(src, &ts, &offset)
	e.UnixTimestamp = int64(ts)
	getUint64(src, &e.Amount, &offset)
	getUint64(src, &e.Time, &offset)
	getUint64(src, &e.AssetID, &offset)
	return &e, nil
}

// PackEscrowAccount writes e into an existing account buffer.
func PackEscrowAccount(dst []byte, e *EscrowAccount) error {
	if len(dst) != EscrowAccountSpan {
		return errors.Wrapf(ErrLayout, "escrow buffer is %d bytes, want %d", len(dst), EscrowAccountSpan)
	}
	copy(dst, EncodeEscrowAccount(e))
	return nil
}

func putAccountType(dst []byte, v AccountType, offset *int) {
	dst[*offset] = uint8(v)
	*offset += 1
}
func getAccountType(src []byte, dst *AccountType, offset *int) {
	*dst = AccountType(src[*offset])
	*offset += 1
}

func putBool(dst []byte, v bool, offset *int) {
	if v {
		dst[*offset] = 1
	} else {
		dst[*offset] = 0
	}
	*offset += 1
}
func getBool(src []byte, dst *bool, offset *int) error {
	switch src[*offset] {
	case 0:
		*dst = false
	case 1:
		*dst = true
	default:
		return errors.Wrapf(ErrLayout, "invalid bool byte %d at offset %d", src[*offset], *offset)
	}
	*offset += 1
	return nil
}

func putKey(dst []byte, v core.Pubkey, offset *int) {
	copy(dst[*offset:], v[:])
	*offset += core.PubkeySize
}
func getKey(src []byte, dst *core.Pubkey, offset *int) {
	copy(dst[:], src[*offset:*offset+core.PubkeySize])
	*offset += core.PubkeySize
}

func putUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], v)
	*offset += 8
}
func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}
