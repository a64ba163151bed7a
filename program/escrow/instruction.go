package escrow

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Opcode is the first byte of every escrow instruction.
type Opcode uint8

const (
	OpInitEscrow Opcode = iota
	OpTakeEscrow
	OpRevertEscrow
	OpInitGameAccount
	OpAddAsset
)

func (o Opcode) String() string {
	switch o {
	case OpInitEscrow:
		return "init_escrow"
	case OpTakeEscrow:
		return "take_escrow"
	case OpRevertEscrow:
		return "revert_escrow"
	case OpInitGameAccount:
		return "init_game_account"
	case OpAddAsset:
		return "add_asset"
	}
	return "unknown"
}

// Instruction is one of InitEscrow, TakeEscrow, RevertEscrow,
// InitGameAccount or AddAsset.
type Instruction interface {
	Opcode() Opcode
	Pack() []byte
}

// InitEscrow locks Amount lamports against AssetID for Time minutes.
type InitEscrow struct {
	Amount  uint64
	Time    uint64
	AssetID uint64
}

type TakeEscrow struct{}

type RevertEscrow struct{}

type InitGameAccount struct{}

type AddAsset struct {
	AssetID uint64
}

func (InitEscrow) Opcode() Opcode      { return OpInitEscrow }
func (TakeEscrow) Opcode() Opcode      { return OpTakeEscrow }
func (RevertEscrow) Opcode() Opcode    { return OpRevertEscrow }
func (InitGameAccount) Opcode() Opcode { return OpInitGameAccount }
func (AddAsset) Opcode() Opcode        { return OpAddAsset }

func (ix InitEscrow) Pack() []byte {
	return packFields(OpInitEscrow, ix.Amount, ix.Time, ix.AssetID)
}
func (TakeEscrow) Pack() []byte      { return packFields(OpTakeEscrow) }
func (RevertEscrow) Pack() []byte    { return packFields(OpRevertEscrow) }
func (InitGameAccount) Pack() []byte { return packFields(OpInitGameAccount) }
func (ix AddAsset) Pack() []byte     { return packFields(OpAddAsset, ix.AssetID) }

func packFields(op Opcode, fields ...uint64) []byte {
	out := make([]byte, 1+8*len(fields))
	out[0] = byte(op)
	for i, f := range fields {
		binary.LittleEndian.PutUint64(out[1+8*i:], f)
	}
	return out
}

// Unpack decodes instruction data. The payload length must match the
// opcode exactly.
func Unpack(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformedInstruction, "empty instruction data")
	}
	op, rest := Opcode(data[0]), data[1:]
	var want int
	switch op {
	case OpInitEscrow:
		want = 24
	case OpAddAsset:
		want = 8
	case OpTakeEscrow, OpRevertEscrow, OpInitGameAccount:
		want = 0
	default:
		return nil, errors.Wrapf(ErrMalformedInstruction, "unknown opcode %d", data[0])
	}
	if len(rest) != want {
		return nil, errors.Wrapf(ErrMalformedInstruction, "%s payload is %d bytes, want %d", op, len(rest), want)
	}
	switch op {
	case OpInitEscrow:
		return InitEscrow{
			Amount:  binary.LittleEndian.Uint64(rest[0:8]),
			Time:    binary.LittleEndian.Uint64(rest[8:16]),
			AssetID: binary.LittleEndian.Uint64(rest[16:24]),
		}, nil
	case OpTakeEscrow:
		return TakeEscrow{}, nil
	case OpRevertEscrow:
		return RevertEscrow{}, nil
	case OpInitGameAccount:
		return InitGameAccount{}, nil
	default:
		return AddAsset{AssetID: binary.LittleEndian.Uint64(rest)}, nil
	}
}
