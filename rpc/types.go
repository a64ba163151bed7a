// Package rpc exposes ledger state and transaction submission via a
// JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"

	"github.com/tolelom/gamescrow/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC error codes plus the server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeTxRejected     = -32001
	CodeNotFound       = -32004
	CodeFaucetDisabled = -32005
)

// Method names.
const (
	MethodGetSlot                  = "getSlot"
	MethodGetBalance               = "getBalance"
	MethodGetAccountInfo           = "getAccountInfo"
	MethodGetGameAccount           = "getGameAccount"
	MethodGetGameAccountsByOwner   = "getGameAccountsByOwner"
	MethodGetEscrow                = "getEscrow"
	MethodGetOpenEscrows           = "getOpenEscrows"
	MethodGetEscrowsByInitialiser  = "getEscrowsByInitialiser"
	MethodGetMinimumBalanceForRent = "getMinimumBalanceForRentExemption"
	MethodSendTransaction          = "sendTransaction"
	MethodGetTransaction           = "getTransaction"
	MethodRequestAirdrop           = "requestAirdrop"
	MethodGetMempoolSize           = "getMempoolSize"
)

// PubkeyParams is the parameter object of every single-account lookup.
type PubkeyParams struct {
	Pubkey core.Pubkey `json:"pubkey"`
}

// SlotParams selects a slot by number; nil selects the tip.
type SlotParams struct {
	Number *uint64 `json:"number,omitempty"`
}

// RentParams asks for the rent-exempt minimum of a data length.
type RentParams struct {
	Space int `json:"space"`
}

// TxParams names a transaction.
type TxParams struct {
	TxID string `json:"tx_id"`
}

// AirdropParams requests faucet lamports.
type AirdropParams struct {
	Pubkey   core.Pubkey `json:"pubkey"`
	Lamports uint64      `json:"lamports"`
}

// BalanceResult is returned by getBalance.
type BalanceResult struct {
	Pubkey   core.Pubkey `json:"pubkey"`
	Lamports uint64      `json:"lamports"`
}

// AccountResult is returned by getAccountInfo. Data is base64 encoded.
type AccountResult struct {
	Pubkey   core.Pubkey `json:"pubkey"`
	Lamports uint64      `json:"lamports"`
	Owner    core.Pubkey `json:"owner"`
	Data     []byte      `json:"data"`
}

// GameAccountResult is the decoded view of a game account.
type GameAccountResult struct {
	Pubkey core.Pubkey `json:"pubkey"`
	Owner  core.Pubkey `json:"owner"`
	Owned  []uint64    `json:"owned"`
	Rented []uint64    `json:"rented"`
}

// EscrowResult is the decoded view of an escrow account.
type EscrowResult struct {
	Pubkey                 core.Pubkey `json:"pubkey"`
	Lamports               uint64      `json:"lamports"`
	IsTaken                bool        `json:"is_taken"`
	InitialiserMainAccount core.Pubkey `json:"initialiser_main_account"`
	InitialiserGameAccount core.Pubkey `json:"initialiser_game_account"`
	TakerGameAccount       core.Pubkey `json:"taker_game_account"`
	UnixTimestamp          int64       `json:"unix_timestamp"`
	Amount                 uint64      `json:"amount"`
	Time                   uint64      `json:"time"`
	AssetID                uint64      `json:"asset_id"`
}

// SendResult is returned by sendTransaction and requestAirdrop.
type SendResult struct {
	TxID string `json:"tx_id"`
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
