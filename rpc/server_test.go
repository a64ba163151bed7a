package rpc_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/config"
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/internal/testutil"
	"github.com/tolelom/gamescrow/node"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/rpc"
	"github.com/tolelom/gamescrow/wallet"
)

type testNode struct {
	*node.Node
	srv   *httptest.Server
	alice *wallet.Wallet
}

func newTestNode(t *testing.T, opts ...rpc.Option) *testNode {
	t.Helper()
	alice, err := wallet.Generate()
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Genesis.Alloc = map[string]uint64{alice.Pubkey().String(): 5_000_000_000}

	n, err := node.New(cfg, testutil.NewMemDB(), alice.PrivKey())
	require.NoError(t, err)
	opts = append(opts, rpc.WithMetrics(n.Metrics.Handler()), rpc.WithObserver(n.Metrics))
	srv := httptest.NewServer(rpc.NewServer("", n.Handler, opts...).Routes())
	t.Cleanup(srv.Close)
	return &testNode{Node: n, srv: srv, alice: alice}
}

type rawResponse struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

func (n *testNode) post(t *testing.T, body string) rawResponse {
	t.Helper()
	resp, err := http.Post(n.srv.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (n *testNode) call(t *testing.T, method string, params any, result any) *rpc.Error {
	t.Helper()
	req := rpc.Request{JSONRPC: "2.0", ID: 1, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = raw
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	out := n.post(t, string(body))
	if out.Error != nil {
		return out.Error
	}
	if result != nil {
		require.NoError(t, json.Unmarshal(out.Result, result))
	}
	return nil
}

func TestProtocolErrors(t *testing.T) {
	n := newTestNode(t)

	out := n.post(t, `{not json`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeParseError, out.Error.Code)

	out = n.post(t, `{"jsonrpc":"1.0","id":3,"method":"getSlot"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, out.Error.Code)
	assert.EqualValues(t, 3, out.ID)

	out = n.post(t, `{"jsonrpc":"2.0","id":4,"method":"getBlock"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, out.Error.Code)

	rerr := n.call(t, rpc.MethodGetBalance, map[string]any{}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeInvalidParams, rerr.Code)

	rerr = n.call(t, rpc.MethodGetBalance, map[string]any{"pubkey": "not-base58!"}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeInvalidParams, rerr.Code)
}

func TestOnlyPostServesRPC(t *testing.T) {
	n := newTestNode(t)
	resp, err := http.Get(n.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(n.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenesisReads(t *testing.T) {
	n := newTestNode(t)

	var slot core.Slot
	require.Nil(t, n.call(t, rpc.MethodGetSlot, nil, &slot))
	assert.Equal(t, uint64(0), slot.Number)
	assert.NotEmpty(t, slot.StateRoot)

	zero := uint64(0)
	var byNumber core.Slot
	require.Nil(t, n.call(t, rpc.MethodGetSlot, rpc.SlotParams{Number: &zero}, &byNumber))
	assert.Equal(t, slot.StateRoot, byNumber.StateRoot)

	missing := uint64(9)
	rerr := n.call(t, rpc.MethodGetSlot, rpc.SlotParams{Number: &missing}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeNotFound, rerr.Code)

	var bal rpc.BalanceResult
	require.Nil(t, n.call(t, rpc.MethodGetBalance, rpc.PubkeyParams{Pubkey: n.alice.Pubkey()}, &bal))
	assert.Equal(t, uint64(5_000_000_000), bal.Lamports)

	var acc rpc.AccountResult
	require.Nil(t, n.call(t, rpc.MethodGetAccountInfo, rpc.PubkeyParams{Pubkey: n.alice.Pubkey()}, &acc))
	assert.Equal(t, core.SystemProgramID, acc.Owner)

	rerr = n.call(t, rpc.MethodGetAccountInfo, rpc.PubkeyParams{Pubkey: core.ProgramID("nobody")}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeNotFound, rerr.Code)

	rerr = n.call(t, rpc.MethodGetEscrow, rpc.PubkeyParams{Pubkey: n.alice.Pubkey()}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeInvalidParams, rerr.Code)

	var min uint64
	require.Nil(t, n.call(t, rpc.MethodGetMinimumBalanceForRent, rpc.RentParams{Space: escrow.GameAccountSpan}, &min))
	assert.Equal(t, n.Executor.Rent().MinimumBalance(escrow.GameAccountSpan), min)
}

func TestTransactionLifecycle(t *testing.T) {
	n := newTestNode(t)
	bob, err := wallet.Generate()
	require.NoError(t, err)

	tx := n.alice.Transfer(bob.Pubkey(), 1234)
	var sent rpc.SendResult
	require.Nil(t, n.call(t, rpc.MethodSendTransaction, tx, &sent))

	var size int
	require.Nil(t, n.call(t, rpc.MethodGetMempoolSize, nil, &size))
	assert.Equal(t, 1, size)

	var r core.Receipt
	require.Nil(t, n.call(t, rpc.MethodGetTransaction, rpc.TxParams{TxID: sent.TxID}, &r))
	assert.Equal(t, core.TxPending, r.Status)

	// Nothing reaches readers until the slot commits.
	var bal rpc.BalanceResult
	require.Nil(t, n.call(t, rpc.MethodGetBalance, rpc.PubkeyParams{Pubkey: bob.Pubkey()}, &bal))
	assert.Zero(t, bal.Lamports)

	_, _, err = n.Sequencer.ProduceSlot()
	require.NoError(t, err)

	require.Nil(t, n.call(t, rpc.MethodGetTransaction, rpc.TxParams{TxID: sent.TxID}, &r))
	assert.Equal(t, core.TxConfirmed, r.Status)
	assert.Equal(t, uint64(1), r.Slot)
	require.Nil(t, n.call(t, rpc.MethodGetBalance, rpc.PubkeyParams{Pubkey: bob.Pubkey()}, &bal))
	assert.Equal(t, uint64(1234), bal.Lamports)

	rerr := n.call(t, rpc.MethodGetTransaction, rpc.TxParams{TxID: "unknown"}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeNotFound, rerr.Code)

	// A settled transaction cannot be replayed.
	rerr = n.call(t, rpc.MethodSendTransaction, tx, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeTxRejected, rerr.Code)
	require.Nil(t, n.call(t, rpc.MethodGetMempoolSize, nil, &size))
	assert.Zero(t, size)
}

func TestAirdropLimit(t *testing.T) {
	n := newTestNode(t)
	bob, err := wallet.Generate()
	require.NoError(t, err)

	rerr := n.call(t, rpc.MethodRequestAirdrop, rpc.AirdropParams{Pubkey: bob.Pubkey(), Lamports: n.Config.Faucet.Limit + 1}, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeInvalidParams, rerr.Code)

	var sent rpc.SendResult
	require.Nil(t, n.call(t, rpc.MethodRequestAirdrop, rpc.AirdropParams{Pubkey: bob.Pubkey(), Lamports: 77}, &sent))
	assert.NotEmpty(t, sent.TxID)
}

func TestFaucetDisabled(t *testing.T) {
	n, err := node.New(config.DefaultConfig(), testutil.NewMemDB(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(rpc.NewServer("", n.Handler).Routes())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"requestAirdrop","params":{"pubkey":"11111111111111111111111111111112","lamports":1}}`
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeFaucetDisabled, out.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	n := newTestNode(t)
	require.Nil(t, n.call(t, rpc.MethodGetMempoolSize, nil, new(int)))

	resp, err := http.Get(n.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gamescrow_rpc_requests_total{method="getMempoolSize",outcome="success"} 1`)
}
