package escrow

import (
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/program/system"
)

func build(ix Instruction, metas ...core.AccountMeta) core.Instruction {
	return core.Instruction{ProgramID: ProgramID, Accounts: metas, Data: ix.Pack()}
}

// NewInitGameAccount builds the instruction that writes the header of an
// allocated game account.
func NewInitGameAccount(gameAccount, owner core.Pubkey) core.Instruction {
	return build(InitGameAccount{},
		core.AccountMeta{Pubkey: gameAccount, IsWritable: true},
		core.AccountMeta{Pubkey: owner},
	)
}

// NewAddAsset builds the instruction that puts assetID into the owner's
// first empty owned slot.
func NewAddAsset(gameAccount, owner core.Pubkey, assetID uint64) core.Instruction {
	return build(AddAsset{AssetID: assetID},
		core.AccountMeta{Pubkey: gameAccount, IsWritable: true},
		core.AccountMeta{Pubkey: owner, IsSigner: true},
	)
}

// NewInitEscrow builds the instruction that opens an escrow in an already
// allocated, funded buffer.
func NewInitEscrow(escrow, initialiserGame, initialiser core.Pubkey, amount, minutes, assetID uint64) core.Instruction {
	return build(InitEscrow{Amount: amount, Time: minutes, AssetID: assetID},
		core.AccountMeta{Pubkey: escrow, IsWritable: true},
		core.AccountMeta{Pubkey: initialiserGame},
		core.AccountMeta{Pubkey: initialiser, IsSigner: true},
	)
}

// NewTakeEscrow builds the instruction that settles an escrow in favour of
// the taker.
func NewTakeEscrow(taker, escrow, initialiserGame, takerGame core.Pubkey) core.Instruction {
	return build(TakeEscrow{},
		core.AccountMeta{Pubkey: taker, IsSigner: true, IsWritable: true},
		core.AccountMeta{Pubkey: escrow, IsWritable: true},
		core.AccountMeta{Pubkey: initialiserGame, IsWritable: true},
		core.AccountMeta{Pubkey: takerGame, IsWritable: true},
	)
}

// NewRevertEscrow builds the instruction that cancels an open escrow. The
// taker game account is the zero key for an escrow nobody has taken.
func NewRevertEscrow(initialiser, escrow, initialiserGame, takerGame core.Pubkey) core.Instruction {
	return build(RevertEscrow{},
		core.AccountMeta{Pubkey: initialiser, IsWritable: true},
		core.AccountMeta{Pubkey: escrow, IsWritable: true},
		core.AccountMeta{Pubkey: initialiserGame},
		core.AccountMeta{Pubkey: takerGame},
	)
}

// CreateGameAccount returns the instructions that allocate a game account
// holding reserve lamports, funded by payer, and initialise it for owner.
// gameAccount must sign the transaction.
func CreateGameAccount(payer, gameAccount, owner core.Pubkey, reserve uint64) []core.Instruction {
	return []core.Instruction{
		system.CreateAccount(payer, gameAccount, reserve, GameAccountSpan, ProgramID),
		NewInitGameAccount(gameAccount, owner),
	}
}

// CreateEscrow returns the instructions that allocate an escrow holding
// reserve plus amount lamports and open it. The initialiser funds the
// escrow; escrow must sign the transaction.
func CreateEscrow(initialiser, escrow, initialiserGame core.Pubkey, reserve, amount, minutes, assetID uint64) []core.Instruction {
	return []core.Instruction{
		system.CreateAccount(initialiser, escrow, reserve+amount, EscrowAccountSpan, ProgramID),
		NewInitEscrow(escrow, initialiserGame, initialiser, amount, minutes, assetID),
	}
}
