// Package system implements the built-in program that owns every plain
// wallet account. It allocates program-owned accounts and moves lamports
// between wallets.
package system

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/vm"
)

// MaxSpace caps the data length CreateAccount can allocate.
const MaxSpace = 10 * 1024

const (
	KindCreateAccount = "create_account"
	KindTransfer      = "transfer"
)

var (
	ErrInvalidInstruction = errors.New("invalid system instruction")
	ErrMissingSignature   = errors.New("missing required signature")
	ErrNotWritable        = errors.New("account must be writable")
	ErrAccountInUse       = errors.New("account already in use")
	ErrInsufficientFunds  = errors.New("insufficient lamports")
	ErrNotRentExempt      = errors.New("lamports below rent-exempt minimum")
	ErrNotSystemOwned     = errors.New("account is not owned by the system program")
)

// Instruction is the JSON payload of a system instruction.
type Instruction struct {
	Kind     string      `json:"kind"`
	Lamports uint64      `json:"lamports"`
	Space    uint64      `json:"space,omitempty"`
	Owner    core.Pubkey `json:"owner"`
}

func init() {
	vm.Register(Program{})
}

// Program is the system program. Its id is the all-zero key.
type Program struct{}

func (Program) ID() core.Pubkey { return core.SystemProgramID }
func (Program) Name() string    { return "system" }

// InstructionName implements vm.InstructionNamer.
func (Program) InstructionName(data []byte) string {
	var ix Instruction
	if err := json.Unmarshal(data, &ix); err != nil || ix.Kind == "" {
		return "invalid"
	}
	return ix.Kind
}

func (Program) Process(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, data []byte) error {
	var ix Instruction
	if err := json.Unmarshal(data, &ix); err != nil {
		return errors.Wrap(ErrInvalidInstruction, err.Error())
	}
	if len(accounts) != 2 {
		return errors.Wrapf(ErrInvalidInstruction, "%s expects 2 accounts, got %d", ix.Kind, len(accounts))
	}
	switch ix.Kind {
	case KindCreateAccount:
		return createAccount(ctx, accounts[0], accounts[1], ix)
	case KindTransfer:
		return transfer(ctx, accounts[0], accounts[1], ix.Lamports)
	default:
		return errors.Wrapf(ErrInvalidInstruction, "unknown kind %q", ix.Kind)
	}
}

// createAccount funds a fresh account, allocates zeroed data and assigns it
// to ix.Owner. Both the funder and the new account must sign.
func createAccount(ctx *vm.InvokeContext, funder, acc *vm.AccountInfo, ix Instruction) error {
	if !funder.IsSigner || !acc.IsSigner {
		return ErrMissingSignature
	}
	if !funder.IsWritable || !acc.IsWritable {
		return ErrNotWritable
	}
	if funder.Key == acc.Key {
		return errors.Wrap(ErrInvalidInstruction, "funder and new account are the same")
	}
	if acc.Lamports != 0 || len(acc.Data) != 0 || acc.Owner != core.SystemProgramID {
		return errors.Wrapf(ErrAccountInUse, "%s", acc.Key)
	}
	if ix.Space > MaxSpace {
		return errors.Wrapf(ErrInvalidInstruction, "space %d exceeds %d", ix.Space, MaxSpace)
	}
	if need := ctx.Rent.MinimumBalance(int(ix.Space)); ix.Lamports < need {
		return errors.Wrapf(ErrNotRentExempt, "need %d, got %d", need, ix.Lamports)
	}
	if err := debit(funder, ix.Lamports); err != nil {
		return err
	}
	acc.Lamports = ix.Lamports
	acc.Data = make([]byte, ix.Space)
	acc.Owner = ix.Owner

	ctx.Log("create_account %s space=%d owner=%s", acc.Key, ix.Space, ix.Owner)
	ctx.Emit(events.EventAccountCreated, map[string]any{
		"account":  acc.Key.String(),
		"funder":   funder.Key.String(),
		"owner":    ix.Owner.String(),
		"lamports": ix.Lamports,
		"space":    ix.Space,
	})
	return nil
}

func transfer(ctx *vm.InvokeContext, from, to *vm.AccountInfo, lamports uint64) error {
	if lamports == 0 {
		return errors.Wrap(ErrInvalidInstruction, "transfer amount must be > 0")
	}
	if !from.IsSigner {
		return ErrMissingSignature
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrNotWritable
	}
	if from.Key == to.Key {
		return errors.Wrap(ErrInvalidInstruction, "transfer to self")
	}
	if err := debit(from, lamports); err != nil {
		return err
	}
	if to.Lamports+lamports < to.Lamports {
		return errors.Wrap(ErrInvalidInstruction, "recipient balance overflow")
	}
	to.Lamports += lamports

	ctx.Log("transfer %d %s -> %s", lamports, from.Key, to.Key)
	ctx.Emit(events.EventLamportsMoved, map[string]any{
		"from":     from.Key.String(),
		"to":       to.Key.String(),
		"lamports": lamports,
	})
	return nil
}

func debit(acc *vm.AccountInfo, lamports uint64) error {
	if acc.Owner != core.SystemProgramID || len(acc.Data) != 0 {
		return errors.Wrapf(ErrNotSystemOwned, "%s", acc.Key)
	}
	if acc.Lamports < lamports {
		return errors.Wrapf(ErrInsufficientFunds, "%s has %d, needs %d", acc.Key, acc.Lamports, lamports)
	}
	acc.Lamports -= lamports
	return nil
}

// CreateAccount builds an instruction that allocates space bytes for
// newAccount, funds it with lamports from funder and assigns it to owner.
func CreateAccount(funder, newAccount core.Pubkey, lamports, space uint64, owner core.Pubkey) core.Instruction {
	return build(Instruction{Kind: KindCreateAccount, Lamports: lamports, Space: space, Owner: owner},
		core.AccountMeta{Pubkey: funder, IsSigner: true, IsWritable: true},
		core.AccountMeta{Pubkey: newAccount, IsSigner: true, IsWritable: true},
	)
}

// Transfer builds an instruction moving lamports from one wallet to another.
func Transfer(from, to core.Pubkey, lamports uint64) core.Instruction {
	return build(Instruction{Kind: KindTransfer, Lamports: lamports},
		core.AccountMeta{Pubkey: from, IsSigner: true, IsWritable: true},
		core.AccountMeta{Pubkey: to, IsWritable: true},
	)
}

func build(ix Instruction, metas ...core.AccountMeta) core.Instruction {
	data, _ := json.Marshal(ix)
	return core.Instruction{ProgramID: core.SystemProgramID, Accounts: metas, Data: data}
}
