package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/indexer"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/program/system"
	"github.com/tolelom/gamescrow/vm"
	"github.com/tolelom/gamescrow/wallet"
)

// Faucet signs development airdrops from a funded key.
type Faucet struct {
	wallet *wallet.Wallet
	limit  uint64
}

// NewFaucet returns a Faucet paying from key, at most limit lamports per
// request.
func NewFaucet(key crypto.PrivateKey, limit uint64) *Faucet {
	return &Faucet{wallet: wallet.New(key), limit: limit}
}

// Address is the account airdrops are paid from.
func (f *Faucet) Address() core.Pubkey { return f.wallet.Pubkey() }

func (f *Faucet) transaction(to core.Pubkey, lamports uint64) (*core.Transaction, error) {
	if lamports == 0 || lamports > f.limit {
		return nil, errors.Errorf("airdrop must be between 1 and %d lamports", f.limit)
	}
	return f.wallet.Transfer(to, lamports), nil
}

// Handler holds all dependencies needed to serve RPC methods. state must
// only expose committed accounts.
type Handler struct {
	ledger  *core.Ledger
	mempool *core.Mempool
	state   core.AccountReader
	indexer *indexer.Indexer
	rent    vm.Rent
	faucet  *Faucet // nil → requestAirdrop disabled
}

// NewHandler creates an RPC Handler.
func NewHandler(ledger *core.Ledger, mempool *core.Mempool, state core.AccountReader, idx *indexer.Indexer, rent vm.Rent) *Handler {
	return &Handler{ledger: ledger, mempool: mempool, state: state, indexer: idx, rent: rent}
}

// Faucet returns the configured faucet, or nil.
func (h *Handler) Faucet() *Faucet { return h.faucet }

// WithFaucet enables requestAirdrop.
func (h *Handler) WithFaucet(f *Faucet) *Handler {
	h.faucet = f
	return h
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case MethodGetSlot:
		return h.getSlot(req)
	case MethodGetBalance:
		return h.getBalance(req)
	case MethodGetAccountInfo:
		return h.getAccountInfo(req)
	case MethodGetGameAccount:
		return h.getGameAccount(req)
	case MethodGetGameAccountsByOwner:
		return h.getGameAccountsByOwner(req)
	case MethodGetEscrow:
		return h.getEscrow(req)
	case MethodGetOpenEscrows:
		return h.getOpenEscrows(req)
	case MethodGetEscrowsByInitialiser:
		return h.getEscrowsByInitialiser(req)
	case MethodGetMinimumBalanceForRent:
		return h.getMinimumBalance(req)
	case MethodSendTransaction:
		return h.sendTransaction(req)
	case MethodGetTransaction:
		return h.getTransaction(req)
	case MethodRequestAirdrop:
		return h.requestAirdrop(req)
	case MethodGetMempoolSize:
		return okResponse(req.ID, h.mempool.Size())
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// params decodes req.Params into dst. An absent params field leaves dst
// at its zero value.
func params(req Request, dst any) *Response {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

func pubkeyParam(req Request) (core.Pubkey, *Response) {
	var p PubkeyParams
	if resp := params(req, &p); resp != nil {
		return core.Pubkey{}, resp
	}
	if p.Pubkey.IsZero() {
		resp := errResponse(req.ID, CodeInvalidParams, "pubkey is required")
		return core.Pubkey{}, &resp
	}
	return p.Pubkey, nil
}

func (h *Handler) getSlot(req Request) Response {
	var p SlotParams
	if resp := params(req, &p); resp != nil {
		return *resp
	}
	if p.Number == nil {
		tip := h.ledger.Tip()
		if tip == nil {
			return errResponse(req.ID, CodeNotFound, "no slot committed")
		}
		return okResponse(req.ID, tip)
	}
	slot, err := h.ledger.GetSlot(*p.Number)
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeNotFound, fmt.Sprintf("slot %d not found", *p.Number))
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, slot)
}

func (h *Handler) account(req Request) (*core.Account, *Response) {
	key, resp := pubkeyParam(req)
	if resp != nil {
		return nil, resp
	}
	acc, err := h.state.GetAccount(key)
	if err != nil {
		r := errResponse(req.ID, CodeInternalError, err.Error())
		return nil, &r
	}
	return acc, nil
}

func (h *Handler) getBalance(req Request) Response {
	acc, resp := h.account(req)
	if resp != nil {
		return *resp
	}
	return okResponse(req.ID, BalanceResult{Pubkey: acc.Key, Lamports: acc.Lamports})
}

func (h *Handler) getAccountInfo(req Request) Response {
	acc, resp := h.account(req)
	if resp != nil {
		return *resp
	}
	if acc.IsClosed() {
		return errResponse(req.ID, CodeNotFound, fmt.Sprintf("account %s not found", acc.Key))
	}
	return okResponse(req.ID, AccountResult{Pubkey: acc.Key, Lamports: acc.Lamports, Owner: acc.Owner, Data: acc.Data})
}

// programAccount loads an account the escrow program owns.
func (h *Handler) programAccount(req Request) (*core.Account, *Response) {
	acc, resp := h.account(req)
	if resp != nil {
		return nil, resp
	}
	if acc.IsClosed() {
		r := errResponse(req.ID, CodeNotFound, fmt.Sprintf("account %s not found", acc.Key))
		return nil, &r
	}
	if acc.Owner != escrow.ProgramID {
		r := errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("account %s is not owned by the escrow program", acc.Key))
		return nil, &r
	}
	return acc, nil
}

func (h *Handler) getGameAccount(req Request) Response {
	acc, resp := h.programAccount(req)
	if resp != nil {
		return *resp
	}
	g, err := escrow.DecodeGameAccount(acc.Data)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("account %s: %v", acc.Key, err))
	}
	return okResponse(req.ID, GameAccountResult{
		Pubkey: acc.Key,
		Owner:  g.Owner,
		Owned:  g.OwnedAssets(),
		Rented: g.RentedAssets(),
	})
}

func (h *Handler) getEscrow(req Request) Response {
	acc, resp := h.programAccount(req)
	if resp != nil {
		return *resp
	}
	e, err := escrow.DecodeEscrowAccount(acc.Data)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("account %s: %v", acc.Key, err))
	}
	return okResponse(req.ID, EscrowResult{
		Pubkey:                 acc.Key,
		Lamports:               acc.Lamports,
		IsTaken:                e.IsTaken,
		InitialiserMainAccount: e.InitialiserMainAccount,
		InitialiserGameAccount: e.InitialiserGameAccount,
		TakerGameAccount:       e.TakerGameAccount,
		UnixTimestamp:          e.UnixTimestamp,
		Amount:                 e.Amount,
		Time:                   e.Time,
		AssetID:                e.AssetID,
	})
}

func (h *Handler) getOpenEscrows(req Request) Response {
	ids, err := h.indexer.OpenEscrows()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(ids))
}

func (h *Handler) getEscrowsByInitialiser(req Request) Response {
	key, resp := pubkeyParam(req)
	if resp != nil {
		return *resp
	}
	ids, err := h.indexer.EscrowsByInitialiser(key)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(ids))
}

func (h *Handler) getGameAccountsByOwner(req Request) Response {
	key, resp := pubkeyParam(req)
	if resp != nil {
		return *resp
	}
	ids, err := h.indexer.GameAccountsByOwner(key)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(ids))
}

func (h *Handler) getMinimumBalance(req Request) Response {
	var p RentParams
	if resp := params(req, &p); resp != nil {
		return *resp
	}
	if p.Space < 0 || p.Space > system.MaxSpace {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("space must be between 0 and %d", system.MaxSpace))
	}
	return okResponse(req.ID, h.rent.MinimumBalance(p.Space))
}

func (h *Handler) sendTransaction(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeTxRejected, err.Error())
	}
	return okResponse(req.ID, SendResult{TxID: tx.ID})
}

func (h *Handler) getTransaction(req Request) Response {
	var p TxParams
	if resp := params(req, &p); resp != nil {
		return *resp
	}
	if p.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.ledger.GetReceipt(p.TxID)
	if err == nil {
		return okResponse(req.ID, r)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if _, ok := h.mempool.Get(p.TxID); ok {
		return okResponse(req.ID, core.Receipt{TxID: p.TxID, Status: core.TxPending})
	}
	return errResponse(req.ID, CodeNotFound, fmt.Sprintf("transaction %s not found", p.TxID))
}

func (h *Handler) requestAirdrop(req Request) Response {
	if h.faucet == nil {
		return errResponse(req.ID, CodeFaucetDisabled, "faucet disabled")
	}
	var p AirdropParams
	if resp := params(req, &p); resp != nil {
		return *resp
	}
	if p.Pubkey.IsZero() {
		return errResponse(req.ID, CodeInvalidParams, "pubkey is required")
	}
	tx, err := h.faucet.transaction(p.Pubkey, p.Lamports)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.mempool.Add(tx); err != nil {
		return errResponse(req.ID, CodeTxRejected, err.Error())
	}
	return okResponse(req.ID, SendResult{TxID: tx.ID})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
