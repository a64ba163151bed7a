// Package client talks to a node over JSON-RPC: typed reads, transaction
// submission, and submit-and-poll confirmation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/consensus"
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/rpc"
)

// DefaultPollInterval is the fixed delay between receipt polls.
const DefaultPollInterval = 500 * time.Millisecond

// Client is a connection to one node. It holds no global state; create one
// per endpoint.
type Client struct {
	endpoint     string
	token        string
	http         *http.Client
	pollInterval time.Duration
	leader       core.Pubkey
	nextID       atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithAuthToken sends a bearer token with every call.
func WithAuthToken(token string) Option { return func(c *Client) { c.token = token } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPollInterval changes the delay between receipt polls.
func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.pollInterval = d } }

// WithLeader makes Slot and SlotByNumber reject slots not sealed by leader.
func WithLeader(leader core.Pubkey) Option { return func(c *Client) { c.leader = leader } }

// New returns a Client for the JSON-RPC endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one JSON-RPC round trip. RPC-level failures are returned
// as *rpc.Error.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	req := rpc.Request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "encode params")
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s", method)
	}
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.Error      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.Wrapf(err, "%s: decode response (http %d)", method, resp.StatusCode)
	}
	if out.Error != nil {
		return out.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return errors.Wrapf(err, "%s: decode result", method)
	}
	return nil
}

// IsNotFound reports whether err is the node's not-found error.
func IsNotFound(err error) bool {
	var rerr *rpc.Error
	return errors.As(err, &rerr) && rerr.Code == rpc.CodeNotFound
}

// Slot returns the tip slot.
func (c *Client) Slot(ctx context.Context) (*core.Slot, error) {
	var s core.Slot
	if err := c.call(ctx, rpc.MethodGetSlot, nil, &s); err != nil {
		return nil, err
	}
	return c.checkSeal(&s)
}

// SlotByNumber returns a committed slot.
func (c *Client) SlotByNumber(ctx context.Context, n uint64) (*core.Slot, error) {
	var s core.Slot
	if err := c.call(ctx, rpc.MethodGetSlot, rpc.SlotParams{Number: &n}, &s); err != nil {
		return nil, err
	}
	return c.checkSeal(&s)
}

func (c *Client) checkSeal(s *core.Slot) (*core.Slot, error) {
	if c.leader.IsZero() {
		return s, nil
	}
	if err := consensus.VerifySeal(s, c.leader); err != nil {
		return nil, err
	}
	return s, nil
}

// Balance returns the committed lamports of key.
func (c *Client) Balance(ctx context.Context, key core.Pubkey) (uint64, error) {
	var r rpc.BalanceResult
	if err := c.call(ctx, rpc.MethodGetBalance, rpc.PubkeyParams{Pubkey: key}, &r); err != nil {
		return 0, err
	}
	return r.Lamports, nil
}

// AccountInfo returns the raw account.
func (c *Client) AccountInfo(ctx context.Context, key core.Pubkey) (*rpc.AccountResult, error) {
	var r rpc.AccountResult
	if err := c.call(ctx, rpc.MethodGetAccountInfo, rpc.PubkeyParams{Pubkey: key}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GameAccount returns the decoded game account.
func (c *Client) GameAccount(ctx context.Context, key core.Pubkey) (*rpc.GameAccountResult, error) {
	var r rpc.GameAccountResult
	if err := c.call(ctx, rpc.MethodGetGameAccount, rpc.PubkeyParams{Pubkey: key}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Escrow returns the decoded escrow.
func (c *Client) Escrow(ctx context.Context, key core.Pubkey) (*rpc.EscrowResult, error) {
	var r rpc.EscrowResult
	if err := c.call(ctx, rpc.MethodGetEscrow, rpc.PubkeyParams{Pubkey: key}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// OpenEscrows lists escrows nobody has taken or reverted.
func (c *Client) OpenEscrows(ctx context.Context) ([]core.Pubkey, error) {
	var ids []core.Pubkey
	if err := c.call(ctx, rpc.MethodGetOpenEscrows, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// EscrowsByInitialiser lists every escrow the depositor opened.
func (c *Client) EscrowsByInitialiser(ctx context.Context, initialiser core.Pubkey) ([]core.Pubkey, error) {
	var ids []core.Pubkey
	if err := c.call(ctx, rpc.MethodGetEscrowsByInitialiser, rpc.PubkeyParams{Pubkey: initialiser}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GameAccountsByOwner lists the game accounts initialised for owner.
func (c *Client) GameAccountsByOwner(ctx context.Context, owner core.Pubkey) ([]core.Pubkey, error) {
	var ids []core.Pubkey
	if err := c.call(ctx, rpc.MethodGetGameAccountsByOwner, rpc.PubkeyParams{Pubkey: owner}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// MinimumBalance returns the rent-exempt reserve for space data bytes.
func (c *Client) MinimumBalance(ctx context.Context, space int) (uint64, error) {
	var n uint64
	if err := c.call(ctx, rpc.MethodGetMinimumBalanceForRent, rpc.RentParams{Space: space}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// MempoolSize returns the number of pending transactions.
func (c *Client) MempoolSize(ctx context.Context) (int, error) {
	var n int
	err := c.call(ctx, rpc.MethodGetMempoolSize, nil, &n)
	return n, err
}

// SendTransaction submits a signed transaction and returns its id.
func (c *Client) SendTransaction(ctx context.Context, tx *core.Transaction) (string, error) {
	var r rpc.SendResult
	if err := c.call(ctx, rpc.MethodSendTransaction, tx, &r); err != nil {
		return "", err
	}
	return r.TxID, nil
}

// Transaction returns the receipt of txID; Status is pending while the
// transaction waits in the mempool.
func (c *Client) Transaction(ctx context.Context, txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := c.call(ctx, rpc.MethodGetTransaction, rpc.TxParams{TxID: txID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RequestAirdrop asks the node faucet for lamports and returns the
// transfer's transaction id.
func (c *Client) RequestAirdrop(ctx context.Context, to core.Pubkey, lamports uint64) (string, error) {
	var r rpc.SendResult
	if err := c.call(ctx, rpc.MethodRequestAirdrop, rpc.AirdropParams{Pubkey: to, Lamports: lamports}, &r); err != nil {
		return "", err
	}
	return r.TxID, nil
}

// TxError is returned by Confirm for a transaction that settled as failed.
// It unwraps to the escrow program error when the receipt carries a code,
// so errors.Is(err, escrow.ErrAlreadyTaken) works on the client side.
type TxError struct {
	Receipt *core.Receipt
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Receipt.TxID, e.Receipt.Error)
}

func (e *TxError) Unwrap() error {
	if e.Receipt.ErrorCode == 0 {
		return nil
	}
	pe, err := escrow.ErrorFromCode(e.Receipt.ErrorCode)
	if err != nil {
		return nil
	}
	return pe
}

// Confirm polls txID at the fixed poll interval until it settles or ctx
// ends. A failed transaction returns its receipt together with *TxError.
func (c *Client) Confirm(ctx context.Context, txID string) (*core.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		r, err := c.Transaction(ctx, txID)
		switch {
		case err != nil && !IsNotFound(err):
			return nil, err
		case err == nil && r.Status == core.TxConfirmed:
			return r, nil
		case err == nil && r.Status == core.TxFailed:
			return r, &TxError{Receipt: r}
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for %s", txID)
		case <-ticker.C:
		}
	}
}

// SendAndConfirm submits tx and waits for its receipt.
func (c *Client) SendAndConfirm(ctx context.Context, tx *core.Transaction) (*core.Receipt, error) {
	id, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return c.Confirm(ctx, id)
}
