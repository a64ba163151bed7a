package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/wallet"
)

// submit signs ixs with payer first and then extra, and waits for the
// receipt.
func (c *Client) submit(ctx context.Context, payer crypto.PrivateKey, ixs []core.Instruction, extra ...crypto.PrivateKey) (*core.Receipt, error) {
	return c.SendAndConfirm(ctx, wallet.New(payer).NewTx(ixs, extra...))
}

// InitGameAccount allocates a rent-exempt game account paid for by owner
// and initialises it. It returns the new account's address.
func (c *Client) InitGameAccount(ctx context.Context, owner crypto.PrivateKey) (core.Pubkey, *core.Receipt, error) {
	gameKey, err := crypto.GenerateKey()
	if err != nil {
		return core.Pubkey{}, nil, err
	}
	reserve, err := c.MinimumBalance(ctx, escrow.GameAccountSpan)
	if err != nil {
		return core.Pubkey{}, nil, err
	}
	ownerPub, gamePub := core.PubkeyOf(owner), core.PubkeyOf(gameKey)
	r, err := c.submit(ctx, owner, escrow.CreateGameAccount(ownerPub, gamePub, ownerPub, reserve), gameKey)
	return gamePub, r, err
}

// AddAsset records assetID in the owner's game account.
func (c *Client) AddAsset(ctx context.Context, owner crypto.PrivateKey, game core.Pubkey, assetID uint64) (*core.Receipt, error) {
	return c.submit(ctx, owner, []core.Instruction{escrow.NewAddAsset(game, core.PubkeyOf(owner), assetID)})
}

// CreateEscrow opens an escrow offering assetID against amount lamports
// for minutes. The initialiser funds the escrow's reserve and amount.
func (c *Client) CreateEscrow(ctx context.Context, initialiser crypto.PrivateKey, initialiserGame core.Pubkey, amount, minutes, assetID uint64) (core.Pubkey, *core.Receipt, error) {
	escrowKey, err := crypto.GenerateKey()
	if err != nil {
		return core.Pubkey{}, nil, err
	}
	reserve, err := c.MinimumBalance(ctx, escrow.EscrowAccountSpan)
	if err != nil {
		return core.Pubkey{}, nil, err
	}
	escrowPub := core.PubkeyOf(escrowKey)
	ixs := escrow.CreateEscrow(core.PubkeyOf(initialiser), escrowPub, initialiserGame, reserve, amount, minutes, assetID)
	r, err := c.submit(ctx, initialiser, ixs, escrowKey)
	return escrowPub, r, err
}

// TakeEscrow settles an open escrow in favour of taker. The initialiser's
// game account is read from the escrow record.
func (c *Client) TakeEscrow(ctx context.Context, taker crypto.PrivateKey, escrowAddr, takerGame core.Pubkey) (*core.Receipt, error) {
	rec, err := c.Escrow(ctx, escrowAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "load escrow %s", escrowAddr)
	}
	ix := escrow.NewTakeEscrow(core.PubkeyOf(taker), escrowAddr, rec.InitialiserGameAccount, takerGame)
	return c.submit(ctx, taker, []core.Instruction{ix})
}

// RevertEscrow cancels an open escrow; payer only pays the fee, the
// lamports go back to the initialiser recorded in the escrow.
func (c *Client) RevertEscrow(ctx context.Context, payer crypto.PrivateKey, escrowAddr core.Pubkey) (*core.Receipt, error) {
	rec, err := c.Escrow(ctx, escrowAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "load escrow %s", escrowAddr)
	}
	ix := escrow.NewRevertEscrow(rec.InitialiserMainAccount, escrowAddr, rec.InitialiserGameAccount, rec.TakerGameAccount)
	return c.submit(ctx, payer, []core.Instruction{ix})
}
