package escrow

import (
	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/vm"
)

// Process dispatches one instruction. Account buffers are written only
// after every check for that instruction has passed.
func (p *Program) Process(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, data []byte) error {
	ix, err := Unpack(data)
	if err != nil {
		return err
	}
	ctx.Log("instruction: %s", ix.Opcode())
	switch ix := ix.(type) {
	case InitEscrow:
		return p.processInitEscrow(ctx, accounts, ix)
	case TakeEscrow:
		return p.processTake(ctx, accounts)
	case RevertEscrow:
		return p.processRevert(ctx, accounts)
	case InitGameAccount:
		return p.processInitGameAccount(ctx, accounts)
	case AddAsset:
		return p.processAddAsset(ctx, accounts, ix)
	}
	return errors.Wrapf(ErrMalformedInstruction, "unhandled opcode %s", ix.Opcode())
}

// expectAccounts enforces the exact account count of an opcode and that
// no key appears twice.
func expectAccounts(op Opcode, accounts []*vm.AccountInfo, n int) error {
	if len(accounts) != n {
		return errors.Wrapf(ErrMalformedInstruction, "%s expects %d accounts, got %d", op, n, len(accounts))
	}
	seen := make(map[core.Pubkey]bool, n)
	for _, a := range accounts {
		if seen[a.Key] {
			return errors.Wrapf(ErrAccountMismatch, "%s lists %s more than once", op, a.Key)
		}
		seen[a.Key] = true
	}
	return nil
}

func requireSigner(a *vm.AccountInfo, role string) error {
	if !a.IsSigner {
		return errors.Wrapf(ErrUnauthorized, "%s %s must sign", role, a.Key)
	}
	return nil
}

func requireWritable(a *vm.AccountInfo, role string) error {
	if !a.IsWritable {
		return errors.Wrapf(ErrUnauthorized, "%s %s must be writable", role, a.Key)
	}
	return nil
}

func (p *Program) requireOwned(a *vm.AccountInfo, role string) error {
	if a.Owner != p.ID() {
		return errors.Wrapf(ErrAccountMismatch, "%s %s is owned by %s", role, a.Key, a.Owner)
	}
	return nil
}

// loadGame decodes a program-owned game account. Anything that is not an
// initialised game account is the wrong account for the role.
func (p *Program) loadGame(a *vm.AccountInfo, role string) (*GameAccount, error) {
	if err := p.requireOwned(a, role); err != nil {
		return nil, err
	}
	g, err := DecodeGameAccount(a.Data)
	if err != nil {
		return nil, errors.Wrapf(ErrAccountMismatch, "%s %s: %v", role, a.Key, err)
	}
	return g, nil
}

// loadEscrow decodes an escrow. An address without escrow data has been
// closed by an earlier settlement, even if lamports were sent to it since.
func (p *Program) loadEscrow(a *vm.AccountInfo) (*EscrowAccount, error) {
	if len(a.Data) == 0 && (a.Lamports == 0 || a.Owner != p.ID()) {
		return nil, errors.Wrapf(ErrAlreadyTaken, "escrow %s is closed", a.Key)
	}
	if err := p.requireOwned(a, "escrow"); err != nil {
		return nil, err
	}
	return DecodeEscrowAccount(a.Data)
}

func (p *Program) processInitEscrow(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, ix InitEscrow) error {
	if err := expectAccounts(OpInitEscrow, accounts, 3); err != nil {
		return err
	}
	escrowAcc, initGameAcc, initMain := accounts[0], accounts[1], accounts[2]
	if err := requireWritable(escrowAcc, "escrow"); err != nil {
		return err
	}
	if err := requireSigner(initMain, "initialiser"); err != nil {
		return err
	}
	if err := p.requireOwned(escrowAcc, "escrow"); err != nil {
		return err
	}
	initGame, err := p.loadGame(initGameAcc, "initialiser game account")
	if err != nil {
		return err
	}

	rec, err := Create(CreateRequest{
		EscrowData:             escrowAcc.Data,
		EscrowLamports:         escrowAcc.Lamports,
		RentMinimum:            ctx.Rent.MinimumBalance(EscrowAccountSpan),
		InitialiserMainAccount: initMain.Key,
		InitialiserGameAccount: initGameAcc.Key,
		InitialiserGame:        initGame,
		Amount:                 ix.Amount,
		Time:                   ix.Time,
		AssetID:                ix.AssetID,
	})
	if err != nil {
		return err
	}
	if err := PackEscrowAccount(escrowAcc.Data, rec); err != nil {
		return err
	}

	ctx.Log("escrow %s opened: asset %d for %d lamports", escrowAcc.Key, ix.AssetID, ix.Amount)
	ctx.Emit(events.EventEscrowCreated, map[string]any{
		"escrow":                   escrowAcc.Key.String(),
		"initialiser_main_account": initMain.Key.String(),
		"initialiser_game_account": initGameAcc.Key.String(),
		"amount":                   ix.Amount,
		"time":                     ix.Time,
		"asset_id":                 ix.AssetID,
	})
	return nil
}

func (p *Program) processTake(ctx *vm.InvokeContext, accounts []*vm.AccountInfo) error {
	if err := expectAccounts(OpTakeEscrow, accounts, 4); err != nil {
		return err
	}
	takerMain, escrowAcc, initGameAcc, takerGameAcc := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := requireSigner(takerMain, "taker"); err != nil {
		return err
	}
	roles := []string{"taker", "escrow", "initialiser game account", "taker game account"}
	for i, a := range accounts {
		if err := requireWritable(a, roles[i]); err != nil {
			return err
		}
	}
	rec, err := p.loadEscrow(escrowAcc)
	if err != nil {
		return err
	}
	initGame, err := p.loadGame(initGameAcc, "initialiser game account")
	if err != nil {
		return err
	}
	takerGame, err := p.loadGame(takerGameAcc, "taker game account")
	if err != nil {
		return err
	}

	res, err := Take(TakeRequest{
		Escrow:                 rec,
		EscrowLamports:         escrowAcc.Lamports,
		TakerMainAccount:       takerMain.Key,
		TakerMainLamports:      takerMain.Lamports,
		InitialiserGameAccount: initGameAcc.Key,
		InitialiserGame:        initGame,
		TakerGameAccount:       takerGameAcc.Key,
		TakerGame:              takerGame,
		Now:                    ctx.Clock.UnixTimestamp,
	})
	if err != nil {
		return err
	}

	if err := PackEscrowAccount(escrowAcc.Data, res.Escrow); err != nil {
		return err
	}
	if err := PackGameAccount(initGameAcc.Data, res.InitialiserGame); err != nil {
		return err
	}
	if err := PackGameAccount(takerGameAcc.Data, res.TakerGame); err != nil {
		return err
	}
	escrowAcc.Lamports = res.EscrowLamports
	takerMain.Lamports = res.TakerMainLamports

	ctx.Log("escrow %s taken by %s", escrowAcc.Key, takerGameAcc.Key)
	ctx.Emit(events.EventEscrowTaken, map[string]any{
		"escrow":                   escrowAcc.Key.String(),
		"initialiser_main_account": rec.InitialiserMainAccount.String(),
		"taker_main_account":       takerMain.Key.String(),
		"taker_game_account":       takerGameAcc.Key.String(),
		"amount":                   rec.Amount,
		"asset_id":                 rec.AssetID,
		"unix_timestamp":           ctx.Clock.UnixTimestamp,
	})
	return nil
}

func (p *Program) processRevert(ctx *vm.InvokeContext, accounts []*vm.AccountInfo) error {
	if err := expectAccounts(OpRevertEscrow, accounts, 4); err != nil {
		return err
	}
	initMain, escrowAcc, initGameAcc, takerGameAcc := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := requireWritable(initMain, "initialiser"); err != nil {
		return err
	}
	if err := requireWritable(escrowAcc, "escrow"); err != nil {
		return err
	}
	rec, err := p.loadEscrow(escrowAcc)
	if err != nil {
		return err
	}

	refund, err := Revert(RevertRequest{
		Escrow:                  rec,
		EscrowLamports:          escrowAcc.Lamports,
		InitialiserMainAccount:  initMain.Key,
		InitialiserMainLamports: initMain.Lamports,
		InitialiserGameAccount:  initGameAcc.Key,
		TakerGameAccount:        takerGameAcc.Key,
	})
	if err != nil {
		return err
	}

	returned := escrowAcc.Lamports
	initMain.Lamports = refund
	escrowAcc.Lamports = 0
	for i := range escrowAcc.Data {
		escrowAcc.Data[i] = 0
	}

	ctx.Log("escrow %s reverted, %d lamports returned", escrowAcc.Key, returned)
	ctx.Emit(events.EventEscrowReverted, map[string]any{
		"escrow":                   escrowAcc.Key.String(),
		"initialiser_main_account": initMain.Key.String(),
		"lamports":                 returned,
		"asset_id":                 rec.AssetID,
	})
	return nil
}

func (p *Program) processInitGameAccount(ctx *vm.InvokeContext, accounts []*vm.AccountInfo) error {
	if err := expectAccounts(OpInitGameAccount, accounts, 2); err != nil {
		return err
	}
	gameAcc, ownerMain := accounts[0], accounts[1]
	if err := requireWritable(gameAcc, "game account"); err != nil {
		return err
	}
	if err := p.requireOwned(gameAcc, "game account"); err != nil {
		return err
	}
	g, err := InitializeGameAccount(gameAcc.Data, ownerMain.Key)
	if err != nil {
		return err
	}
	if err := PackGameAccount(gameAcc.Data, g); err != nil {
		return err
	}

	ctx.Log("game account %s initialised for %s", gameAcc.Key, ownerMain.Key)
	ctx.Emit(events.EventGameAccountInit, map[string]any{
		"game_account": gameAcc.Key.String(),
		"owner":        ownerMain.Key.String(),
	})
	return nil
}

func (p *Program) processAddAsset(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, ix AddAsset) error {
	if err := expectAccounts(OpAddAsset, accounts, 2); err != nil {
		return err
	}
	gameAcc, ownerMain := accounts[0], accounts[1]
	if err := requireWritable(gameAcc, "game account"); err != nil {
		return err
	}
	if err := requireSigner(ownerMain, "owner"); err != nil {
		return err
	}
	if err := p.requireOwned(gameAcc, "game account"); err != nil {
		return err
	}
	g, err := DecodeGameAccount(gameAcc.Data)
	if err != nil {
		return err
	}
	if g.Owner != ownerMain.Key {
		return errors.Wrapf(ErrUnauthorized, "game account %s belongs to %s", gameAcc.Key, g.Owner)
	}
	slot, err := g.AddAsset(ix.AssetID, p.DuplicatePolicy())
	if err != nil {
		return err
	}
	if err := PackGameAccount(gameAcc.Data, g); err != nil {
		return err
	}

	ctx.Log("asset %d added to %s slot %d", ix.AssetID, gameAcc.Key, slot)
	ctx.Emit(events.EventAssetAdded, map[string]any{
		"game_account": gameAcc.Key.String(),
		"asset_id":     ix.AssetID,
		"slot":         slot,
	})
	return nil
}
