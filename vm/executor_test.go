package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/internal/testutil"
	"github.com/tolelom/gamescrow/program/system"
	"github.com/tolelom/gamescrow/storage"
	"github.com/tolelom/gamescrow/vm"
)

// funcProgram adapts a closure into a vm.Program.
type funcProgram struct {
	id core.Pubkey
	fn func(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, data []byte) error
}

func (p funcProgram) ID() core.Pubkey { return p.id }
func (p funcProgram) Name() string    { return "func" }
func (p funcProgram) Process(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, data []byte) error {
	return p.fn(ctx, accounts, data)
}

var testProgramID = core.ProgramID("test-program")

type env struct {
	state    *storage.StateDB
	exec     *vm.Executor
	emitter  *events.Emitter
	received []events.Event
	payer    crypto.PrivateKey
}

func newEnv(t *testing.T, fn func(ctx *vm.InvokeContext, accounts []*vm.AccountInfo, data []byte) error) *env {
	t.Helper()
	reg := vm.NewRegistry()
	reg.Register(system.Program{})
	if fn != nil {
		reg.Register(funcProgram{id: testProgramID, fn: fn})
	}
	e := &env{state: storage.NewStateDB(testutil.NewMemDB()), emitter: events.NewEmitter()}
	e.emitter.SubscribeAll(func(ev events.Event) { e.received = append(e.received, ev) })
	e.exec = vm.NewExecutor(e.state, e.emitter, vm.Config{FeePerSignature: 5000, Rent: vm.DefaultRent}).WithRegistry(reg)

	var err error
	e.payer, err = crypto.GenerateKey()
	require.NoError(t, err)
	e.fund(t, core.PubkeyOf(e.payer), 10_000_000)
	return e
}

func (e *env) fund(t *testing.T, key core.Pubkey, lamports uint64) {
	require.NoError(t, e.state.SetAccount(&core.Account{Key: key, Lamports: lamports}))
}

func (e *env) balance(t *testing.T, key core.Pubkey) uint64 {
	acc, err := e.state.GetAccount(key)
	require.NoError(t, err)
	return acc.Lamports
}

func (e *env) send(t *testing.T, ixs []core.Instruction, extra ...crypto.PrivateKey) (*vm.TxResult, error) {
	t.Helper()
	tx := core.NewTransaction(core.PubkeyOf(e.payer), ixs...)
	tx.Sign(append([]crypto.PrivateKey{e.payer}, extra...)...)
	return e.exec.ExecuteTx(vm.Clock{Slot: 3, UnixTimestamp: 1000}, tx)
}

func TestTransferChargesFee(t *testing.T) {
	e := newEnv(t, nil)
	to := core.ProgramID("recipient")
	from := core.PubkeyOf(e.payer)

	res, err := e.send(t, []core.Instruction{system.Transfer(from, to, 300)})
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), res.Fee)
	assert.Equal(t, uint64(10_000_000-5000-300), e.balance(t, from))
	assert.Equal(t, uint64(300), e.balance(t, to))
	assert.NotEmpty(t, res.Logs)

	require.Len(t, e.received, 2)
	assert.Equal(t, events.EventLamportsMoved, e.received[0].Type)
	assert.Equal(t, events.EventTxExecuted, e.received[1].Type)
	assert.Equal(t, uint64(3), e.received[0].Slot)
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	e := newEnv(t, nil)
	from := core.PubkeyOf(e.payer)
	to := core.ProgramID("recipient")
	rootBefore := e.state.ComputeRoot()

	// The first transfer succeeds on its own; the second overdraws and
	// must take the first one and the fee down with it.
	_, err := e.send(t, []core.Instruction{
		system.Transfer(from, to, 100),
		system.Transfer(from, to, 100_000_000),
	})
	require.ErrorIs(t, err, system.ErrInsufficientFunds)
	assert.Equal(t, rootBefore, e.state.ComputeRoot())
	assert.Equal(t, uint64(10_000_000), e.balance(t, from))

	require.Len(t, e.received, 1)
	assert.Equal(t, events.EventTxFailed, e.received[0].Type)
}

func TestCreateAccountAssignsOwner(t *testing.T) {
	e := newEnv(t, nil)
	newKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	acc := core.PubkeyOf(newKey)
	lamports := vm.DefaultRent.MinimumBalance(64)

	_, err = e.send(t, []core.Instruction{
		system.CreateAccount(core.PubkeyOf(e.payer), acc, lamports, 64, testProgramID),
	}, newKey)
	require.NoError(t, err)

	got, err := e.state.GetAccount(acc)
	require.NoError(t, err)
	assert.Equal(t, testProgramID, got.Owner)
	assert.Len(t, got.Data, 64)
	assert.Equal(t, lamports, got.Lamports)

	// Without the new account's signature the instruction never verifies.
	other, _ := crypto.GenerateKey()
	_, err = e.send(t, []core.Instruction{
		system.CreateAccount(core.PubkeyOf(e.payer), core.PubkeyOf(other), lamports, 64, testProgramID),
	})
	assert.Error(t, err)
}

func TestRuntimeRejectsForeignWrites(t *testing.T) {
	victim := core.ProgramID("victim")
	cases := map[string]struct {
		fn   func(accounts []*vm.AccountInfo)
		want error
	}{
		"data of system account": {
			fn:   func(a []*vm.AccountInfo) { a[0].Data = []byte{1} },
			want: vm.ErrDataLengthChange,
		},
		"lamports debited": {
			fn:   func(a []*vm.AccountInfo) { a[0].Lamports--; a[1].Lamports++ },
			want: vm.ErrExternalLamportDebt,
		},
		"lamports minted": {
			fn:   func(a []*vm.AccountInfo) { a[1].Lamports += 10 },
			want: vm.ErrUnbalanced,
		},
		"owner reassigned": {
			fn:   func(a []*vm.AccountInfo) { a[0].Owner = testProgramID },
			want: vm.ErrOwnerChange,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, func(_ *vm.InvokeContext, accounts []*vm.AccountInfo, _ []byte) error {
				tc.fn(accounts)
				return nil
			})
			e.fund(t, victim, 1000)
			ix := core.Instruction{ProgramID: testProgramID, Accounts: []core.AccountMeta{
				{Pubkey: victim, IsWritable: true},
				{Pubkey: core.ProgramID("sink"), IsWritable: true},
			}}
			_, err := e.send(t, []core.Instruction{ix})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, uint64(1000), e.balance(t, victim))
		})
	}
}

func TestRuntimeRejectsReadonlyChange(t *testing.T) {
	owned := core.ProgramID("owned")
	e := newEnv(t, func(_ *vm.InvokeContext, accounts []*vm.AccountInfo, _ []byte) error {
		accounts[0].Data[0] = 7
		return nil
	})
	require.NoError(t, e.state.SetAccount(&core.Account{Key: owned, Lamports: 10, Owner: testProgramID, Data: make([]byte, 4)}))

	ix := core.Instruction{ProgramID: testProgramID, Accounts: []core.AccountMeta{{Pubkey: owned}}}
	_, err := e.send(t, []core.Instruction{ix})
	assert.ErrorIs(t, err, vm.ErrReadonlyModified)

	ix.Accounts[0].IsWritable = true
	_, err = e.send(t, []core.Instruction{ix})
	require.NoError(t, err)
	acc, _ := e.state.GetAccount(owned)
	assert.Equal(t, []byte{7, 0, 0, 0}, acc.Data)
}

func TestZeroLamportAccountIsDropped(t *testing.T) {
	owned := core.ProgramID("closing")
	e := newEnv(t, func(_ *vm.InvokeContext, accounts []*vm.AccountInfo, _ []byte) error {
		accounts[1].Lamports += accounts[0].Lamports
		accounts[0].Lamports = 0
		return nil
	})
	require.NoError(t, e.state.SetAccount(&core.Account{Key: owned, Lamports: 50, Owner: testProgramID, Data: make([]byte, 4)}))
	sink := core.ProgramID("sink")

	ix := core.Instruction{ProgramID: testProgramID, Accounts: []core.AccountMeta{
		{Pubkey: owned, IsWritable: true},
		{Pubkey: sink, IsWritable: true},
	}}
	_, err := e.send(t, []core.Instruction{ix})
	require.NoError(t, err)
	require.NoError(t, e.state.Commit())

	acc, err := e.state.GetAccount(owned)
	require.NoError(t, err)
	assert.Equal(t, core.SystemProgramID, acc.Owner)
	assert.Empty(t, acc.Data)
	assert.Equal(t, uint64(50), e.balance(t, sink))
}

func TestProgramErrorCodeSurvivesWrapping(t *testing.T) {
	e := newEnv(t, func(_ *vm.InvokeContext, _ []*vm.AccountInfo, _ []byte) error {
		return codedErr(42)
	})
	_, err := e.send(t, []core.Instruction{{ProgramID: testProgramID}})
	require.Error(t, err)
	assert.Equal(t, uint32(42), vm.ErrorCode(err))
}

func TestUnknownProgram(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.send(t, []core.Instruction{{ProgramID: core.ProgramID("nowhere")}})
	assert.ErrorIs(t, err, vm.ErrUnknownProgram)
}

func TestFeePayerMustAffordFee(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, core.PubkeyOf(e.payer), 10)
	_, err := e.send(t, []core.Instruction{system.Transfer(core.PubkeyOf(e.payer), core.ProgramID("x"), 1)})
	assert.ErrorIs(t, err, vm.ErrFeePayer)
}

type codedErr uint32

func (c codedErr) Error() string     { return "coded" }
func (c codedErr) ErrorCode() uint32 { return uint32(c) }

func TestRentMinimumBalance(t *testing.T) {
	r := vm.Rent{LamportsPerByteYear: 10, ExemptionThreshold: 2}
	assert.Equal(t, uint64((128+130)*10*2), r.MinimumBalance(130))
	assert.True(t, r.IsExempt(r.MinimumBalance(0), 0))
	assert.False(t, r.IsExempt(r.MinimumBalance(1)-1, 1))
}
