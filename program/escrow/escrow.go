package escrow

import (
	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
)

// CreateRequest carries everything Create needs. Buffers and balances are
// read, never modified.
type CreateRequest struct {
	EscrowData             []byte
	EscrowLamports         uint64
	RentMinimum            uint64
	InitialiserMainAccount core.Pubkey
	InitialiserGameAccount core.Pubkey
	InitialiserGame        *GameAccount
	Amount                 uint64
	Time                   uint64
	AssetID                uint64
}

// Create opens an escrow. The depositor's game account is not modified;
// the asset only moves when the escrow is taken.
func Create(req CreateRequest) (*EscrowAccount, error) {
	if len(req.EscrowData) != EscrowAccountSpan {
		return nil, errors.Wrapf(ErrLayout, "escrow buffer is %d bytes, want %d", len(req.EscrowData), EscrowAccountSpan)
	}
	if tag := TagOf(req.EscrowData); tag != AccountTypeUninitialized {
		return nil, errors.Wrapf(ErrAlreadyInitialized, "escrow buffer holds a %s account", tag)
	}
	if req.AssetID == 0 {
		return nil, errors.Wrap(ErrMalformedInstruction, "asset id 0 marks an empty slot")
	}
	if req.InitialiserGame.Owner != req.InitialiserMainAccount {
		return nil, errors.Wrapf(ErrUnauthorized, "game account %s belongs to %s", req.InitialiserGameAccount, req.InitialiserGame.Owner)
	}
	if !req.InitialiserGame.Owns(req.AssetID) {
		return nil, errors.Wrapf(ErrAssetNotFound, "asset %d not owned by %s", req.AssetID, req.InitialiserGameAccount)
	}
	need := req.RentMinimum + req.Amount
	if need < req.Amount {
		return nil, errors.Wrap(ErrAmountOverflow, "rent minimum plus amount")
	}
	if req.EscrowLamports < need {
		return nil, errors.Wrapf(ErrInsufficientFunds, "escrow holds %d, needs %d", req.EscrowLamports, need)
	}
	return &EscrowAccount{
		InitialiserMainAccount: req.InitialiserMainAccount,
		InitialiserGameAccount: req.InitialiserGameAccount,
		Amount:                 req.Amount,
		Time:                   req.Time,
		AssetID:                req.AssetID,
	}, nil
}

// TakeRequest carries the decoded accounts of a take.
type TakeRequest struct {
	Escrow                 *EscrowAccount
	EscrowLamports         uint64
	TakerMainAccount       core.Pubkey
	TakerMainLamports      uint64
	InitialiserGameAccount core.Pubkey
	InitialiserGame        *GameAccount
	TakerGameAccount       core.Pubkey
	TakerGame              *GameAccount
	Now                    int64
}

// TakeResult is the state after a successful take. Inputs are not modified.
type TakeResult struct {
	Escrow            *EscrowAccount
	EscrowLamports    uint64
	TakerMainLamports uint64
	InitialiserGame   *GameAccount
	TakerGame         *GameAccount
}

// Take settles an open escrow: the asset is lent from the initialiser
// (owned -> rented) to the taker (rented) and the locked amount is paid to
// the taker. The escrow keeps its rent reserve and is marked taken.
func Take(req TakeRequest) (*TakeResult, error) {
	rec := req.Escrow
	if rec.IsTaken {
		return nil, ErrAlreadyTaken
	}
	if req.InitialiserGameAccount != rec.InitialiserGameAccount {
		return nil, errors.Wrapf(ErrAccountMismatch, "initialiser game account %s, escrow names %s", req.InitialiserGameAccount, rec.InitialiserGameAccount)
	}
	if !rec.TakerGameAccount.IsZero() && rec.TakerGameAccount != req.TakerGameAccount {
		return nil, errors.Wrapf(ErrAccountMismatch, "escrow reserved for taker %s", rec.TakerGameAccount)
	}
	if req.TakerGameAccount == req.InitialiserGameAccount {
		return nil, errors.Wrap(ErrAccountMismatch, "taker and initialiser game accounts are the same")
	}
	if req.TakerGame.Owner != req.TakerMainAccount {
		return nil, errors.Wrapf(ErrUnauthorized, "game account %s belongs to %s", req.TakerGameAccount, req.TakerGame.Owner)
	}
	if req.EscrowLamports < rec.Amount {
		return nil, errors.Wrapf(ErrInsufficientFunds, "escrow holds %d, owes %d", req.EscrowLamports, rec.Amount)
	}
	paid := req.TakerMainLamports + rec.Amount
	if paid < req.TakerMainLamports {
		return nil, errors.Wrap(ErrAmountOverflow, "taker balance")
	}

	initGame, takerGame := *req.InitialiserGame, *req.TakerGame
	if err := initGame.MoveToRented(rec.AssetID); err != nil {
		return nil, errors.Wrap(err, "initialiser game account")
	}
	if err := takerGame.ReceiveRented(rec.AssetID); err != nil {
		return nil, errors.Wrap(err, "taker game account")
	}

	taken := *rec
	taken.IsTaken = true
	taken.TakerGameAccount = req.TakerGameAccount
	taken.UnixTimestamp = req.Now
	return &TakeResult{
		Escrow:            &taken,
		EscrowLamports:    req.EscrowLamports - rec.Amount,
		TakerMainLamports: paid,
		InitialiserGame:   &initGame,
		TakerGame:         &takerGame,
	}, nil
}

// RevertRequest carries the decoded accounts of a revert.
type RevertRequest struct {
	Escrow                  *EscrowAccount
	EscrowLamports          uint64
	InitialiserMainAccount  core.Pubkey
	InitialiserMainLamports uint64
	InitialiserGameAccount  core.Pubkey
	TakerGameAccount        core.Pubkey
}

// Revert cancels an open escrow and returns the new initialiser balance:
// every lamport the escrow holds goes back to the initialiser and the
// escrow is closed. Game accounts are untouched.
func Revert(req RevertRequest) (uint64, error) {
	rec := req.Escrow
	if rec.IsTaken {
		return 0, ErrAlreadyTaken
	}
	if req.InitialiserMainAccount != rec.InitialiserMainAccount {
		return 0, errors.Wrapf(ErrAccountMismatch, "initialiser %s, escrow names %s", req.InitialiserMainAccount, rec.InitialiserMainAccount)
	}
	if req.InitialiserGameAccount != rec.InitialiserGameAccount {
		return 0, errors.Wrapf(ErrAccountMismatch, "initialiser game account %s, escrow names %s", req.InitialiserGameAccount, rec.InitialiserGameAccount)
	}
	if req.TakerGameAccount != rec.TakerGameAccount {
		return 0, errors.Wrapf(ErrAccountMismatch, "taker game account %s, escrow names %s", req.TakerGameAccount, rec.TakerGameAccount)
	}
	refund := req.InitialiserMainLamports + req.EscrowLamports
	if refund < req.InitialiserMainLamports {
		return 0, errors.Wrap(ErrAmountOverflow, "initialiser balance")
	}
	return refund, nil
}
