package sequencer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/config"
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/internal/testutil"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/program/system"
	"github.com/tolelom/gamescrow/sequencer"
	"github.com/tolelom/gamescrow/storage"
	"github.com/tolelom/gamescrow/vm"
	"github.com/tolelom/gamescrow/wallet"
)

const now = 1_700_000_000

type slotObserver struct {
	slots []uint64
	txs   int
}

func (o *slotObserver) ObserveSlot(number uint64, confirmed, failed, pending int, elapsed time.Duration) {
	o.slots = append(o.slots, number)
	o.txs += confirmed + failed
}

type chain struct {
	db       *testutil.MemDB
	state    *storage.StateDB
	ledger   *core.Ledger
	mempool  *core.Mempool
	emitter  *events.Emitter
	seq      *sequencer.Sequencer
	observer *slotObserver
	rent     vm.Rent

	alice, bob *wallet.Wallet
}

func newChain(t *testing.T) *chain {
	t.Helper()
	alice, err := wallet.Generate()
	require.NoError(t, err)
	bob, err := wallet.Generate()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Genesis.Alloc = map[string]uint64{
		alice.Pubkey().String(): 10_000_000_000,
		bob.Pubkey().String():   10_000_000_000,
	}

	c := &chain{
		db:       testutil.NewMemDB(),
		mempool:  core.NewMempool(0),
		emitter:  events.NewEmitter(),
		observer: &slotObserver{},
		rent:     vm.DefaultRent,
		alice:    alice,
		bob:      bob,
	}
	c.state = storage.NewStateDB(c.db)
	c.ledger = core.NewLedger(storage.NewSlotStore(c.db))
	require.NoError(t, c.ledger.Init())
	genesis, err := config.CreateGenesisSlot(cfg, c.state)
	require.NoError(t, err)
	require.NoError(t, c.ledger.AddSlot(genesis, nil, c.state))

	reg := vm.NewRegistry()
	reg.Register(system.Program{})
	reg.Register(escrow.New(escrow.DuplicatesAllowed))
	exec := vm.NewExecutor(c.state, c.emitter, cfg.VMConfig()).WithRegistry(reg)

	c.seq = sequencer.New(sequencer.Config{Interval: 10 * time.Millisecond}, c.ledger, c.state, c.mempool, exec, c.emitter).
		WithObserver(c.observer).
		WithClock(func() time.Time { return time.Unix(now, 0) })
	return c
}

func (c *chain) submit(t *testing.T, w *wallet.Wallet, ixs []core.Instruction, extra ...crypto.PrivateKey) *core.Transaction {
	t.Helper()
	tx := w.NewTx(ixs, extra...)
	require.NoError(t, c.mempool.Add(tx))
	return tx
}

func (c *chain) newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func (c *chain) account(t *testing.T, key core.Pubkey) *core.Account {
	t.Helper()
	acc, err := storage.NewStateDB(c.db).GetAccount(key)
	require.NoError(t, err)
	return acc
}

func TestProduceSlotWithEmptyMempool(t *testing.T) {
	c := newChain(t)
	slot, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	assert.Nil(t, slot)
	assert.Nil(t, receipts)
	assert.Equal(t, uint64(0), c.ledger.Height())
}

func TestEscrowLifecycleAcrossSlots(t *testing.T) {
	c := newChain(t)
	aliceGame, bobGame, escrowKey := c.newKey(t), c.newKey(t), c.newKey(t)
	aliceGamePub, bobGamePub, escrowPub := core.PubkeyOf(aliceGame), core.PubkeyOf(bobGame), core.PubkeyOf(escrowKey)
	gameReserve := c.rent.MinimumBalance(escrow.GameAccountSpan)

	c.submit(t, c.alice, append(
		escrow.CreateGameAccount(c.alice.Pubkey(), aliceGamePub, c.alice.Pubkey(), gameReserve),
		escrow.NewAddAsset(aliceGamePub, c.alice.Pubkey(), 42),
	), aliceGame)
	c.submit(t, c.bob, escrow.CreateGameAccount(c.bob.Pubkey(), bobGamePub, c.bob.Pubkey(), gameReserve), bobGame)

	slot1, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	for _, r := range receipts {
		assert.Equal(t, core.TxConfirmed, r.Status, r.Error)
		assert.Equal(t, uint64(1), r.Slot)
	}
	assert.Equal(t, uint64(1), slot1.Number)
	assert.Equal(t, int64(now), slot1.Timestamp)
	assert.Zero(t, c.mempool.Size())

	escrowReserve := c.rent.MinimumBalance(escrow.EscrowAccountSpan)
	create := c.submit(t, c.alice, escrow.CreateEscrow(c.alice.Pubkey(), escrowPub, aliceGamePub, escrowReserve, 1000, 60, 42), escrowKey)
	take := c.submit(t, c.bob, []core.Instruction{escrow.NewTakeEscrow(c.bob.Pubkey(), escrowPub, aliceGamePub, bobGamePub)})
	revert := c.submit(t, c.alice, []core.Instruction{escrow.NewRevertEscrow(c.alice.Pubkey(), escrowPub, aliceGamePub, core.Pubkey{})})

	slot2, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.Equal(t, slot1.StateRoot, slot2.PrevRoot)
	assert.Equal(t, []string{create.ID, take.ID, revert.ID}, slot2.TxIDs)

	assert.Equal(t, core.TxConfirmed, receipts[0].Status, receipts[0].Error)
	assert.Equal(t, core.TxConfirmed, receipts[1].Status, receipts[1].Error)
	assert.Equal(t, core.TxFailed, receipts[2].Status)
	assert.Equal(t, escrow.ErrAlreadyTaken.Code, receipts[2].ErrorCode)
	assert.Zero(t, receipts[2].Fee)

	stored, err := c.ledger.GetReceipt(revert.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TxFailed, stored.Status)
	assert.Equal(t, receipts[2].ErrorCode, stored.ErrorCode)

	rec, err := escrow.DecodeEscrowAccount(c.account(t, escrowPub).Data)
	require.NoError(t, err)
	assert.True(t, rec.IsTaken)
	assert.Equal(t, bobGamePub, rec.TakerGameAccount)
	assert.Equal(t, int64(now), rec.UnixTimestamp)
	assert.Equal(t, escrowReserve, c.account(t, escrowPub).Lamports)

	aliceLedger, err := escrow.DecodeGameAccount(c.account(t, aliceGamePub).Data)
	require.NoError(t, err)
	assert.False(t, aliceLedger.Owns(42))
	assert.True(t, aliceLedger.Rents(42))
	bobLedger, err := escrow.DecodeGameAccount(c.account(t, bobGamePub).Data)
	require.NoError(t, err)
	assert.True(t, bobLedger.Rents(42))

	assert.Equal(t, []uint64{1, 2}, c.observer.slots)
	assert.Equal(t, 5, c.observer.txs)
}

func TestFailedTransactionDoesNotBlockSlot(t *testing.T) {
	c := newChain(t)
	game := c.newKey(t)
	gamePub := core.PubkeyOf(game)

	// Adding an asset to an account that does not exist yet fails.
	bad := c.submit(t, c.alice, []core.Instruction{escrow.NewAddAsset(gamePub, c.alice.Pubkey(), 7)})
	good := c.submit(t, c.bob, []core.Instruction{system.Transfer(c.bob.Pubkey(), c.alice.Pubkey(), 500)})

	before := c.account(t, c.alice.Pubkey()).Lamports
	_, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, bad.ID, receipts[0].TxID)
	assert.Equal(t, core.TxFailed, receipts[0].Status)
	assert.Equal(t, escrow.ErrAccountMismatch.Code, receipts[0].ErrorCode)
	assert.Equal(t, good.ID, receipts[1].TxID)
	assert.Equal(t, core.TxConfirmed, receipts[1].Status)
	assert.Equal(t, before+500, c.account(t, c.alice.Pubkey()).Lamports)
}

func TestSlotCommitEventFollowsProgramEvents(t *testing.T) {
	c := newChain(t)
	var seen []events.EventType
	c.emitter.SubscribeAll(func(ev events.Event) { seen = append(seen, ev.Type) })

	game := c.newKey(t)
	c.submit(t, c.alice, escrow.CreateGameAccount(c.alice.Pubkey(), core.PubkeyOf(game), c.alice.Pubkey(),
		c.rent.MinimumBalance(escrow.GameAccountSpan)), game)
	_, _, err := c.seq.ProduceSlot()
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, events.EventSlotCommit, seen[len(seen)-1])
	assert.Contains(t, seen, events.EventGameAccountInit)
	assert.Contains(t, seen, events.EventTxExecuted)
}

func TestFailedSlotLeavesAccountsByteIdentical(t *testing.T) {
	c := newChain(t)
	before := c.db.Dump([]byte("acct:"))

	// Neither escrow nor game accounts exist, so both fail inside the program.
	c.submit(t, c.bob, []core.Instruction{escrow.NewTakeEscrow(c.bob.Pubkey(), core.ProgramID("no-escrow"), core.ProgramID("g1"), core.ProgramID("g2"))})
	c.submit(t, c.alice, []core.Instruction{escrow.NewAddAsset(core.ProgramID("no-game"), c.alice.Pubkey(), 1)})

	slot, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	require.NotNil(t, slot)
	for _, r := range receipts {
		assert.Equal(t, core.TxFailed, r.Status)
		assert.NotZero(t, r.ErrorCode)
	}
	assert.Equal(t, before, c.db.Dump([]byte("acct:")))
}

func TestRevertedEscrowStaysClosed(t *testing.T) {
	c := newChain(t)
	aliceGame, bobGame, escrowKey := c.newKey(t), c.newKey(t), c.newKey(t)
	aliceGamePub, bobGamePub, escrowPub := core.PubkeyOf(aliceGame), core.PubkeyOf(bobGame), core.PubkeyOf(escrowKey)
	gameReserve := c.rent.MinimumBalance(escrow.GameAccountSpan)
	escrowReserve := c.rent.MinimumBalance(escrow.EscrowAccountSpan)

	c.submit(t, c.alice, append(
		escrow.CreateGameAccount(c.alice.Pubkey(), aliceGamePub, c.alice.Pubkey(), gameReserve),
		escrow.NewAddAsset(aliceGamePub, c.alice.Pubkey(), 42),
	), aliceGame)
	c.submit(t, c.bob, escrow.CreateGameAccount(c.bob.Pubkey(), bobGamePub, c.bob.Pubkey(), gameReserve), bobGame)
	c.submit(t, c.alice, escrow.CreateEscrow(c.alice.Pubkey(), escrowPub, aliceGamePub, escrowReserve, 1000, 60, 42), escrowKey)
	_, receipts, err := c.seq.ProduceSlot()
	require.NoError(t, err)
	for _, r := range receipts {
		require.Equal(t, core.TxConfirmed, r.Status, r.Error)
	}

	aliceBefore := c.account(t, c.alice.Pubkey()).Lamports
	c.submit(t, c.alice, []core.Instruction{escrow.NewRevertEscrow(c.alice.Pubkey(), escrowPub, aliceGamePub, core.Pubkey{})})
	dust := c.submit(t, c.bob, []core.Instruction{system.Transfer(c.bob.Pubkey(), escrowPub, 1)})
	take := c.submit(t, c.bob, []core.Instruction{escrow.NewTakeEscrow(c.bob.Pubkey(), escrowPub, aliceGamePub, bobGamePub)})
	again := c.submit(t, c.alice, []core.Instruction{escrow.NewRevertEscrow(c.alice.Pubkey(), escrowPub, aliceGamePub, core.Pubkey{})})

	_, receipts, err = c.seq.ProduceSlot()
	require.NoError(t, err)
	require.Len(t, receipts, 4)
	assert.Equal(t, core.TxConfirmed, receipts[0].Status, receipts[0].Error)
	assert.Equal(t, dust.ID, receipts[1].TxID)
	assert.Equal(t, core.TxConfirmed, receipts[1].Status, receipts[1].Error)
	assert.Equal(t, take.ID, receipts[2].TxID)
	assert.Equal(t, core.TxFailed, receipts[2].Status)
	assert.Equal(t, escrow.ErrAlreadyTaken.Code, receipts[2].ErrorCode)
	assert.Equal(t, again.ID, receipts[3].TxID)
	assert.Equal(t, escrow.ErrAlreadyTaken.Code, receipts[3].ErrorCode)

	assert.Equal(t, aliceBefore+escrowReserve+1000-receipts[0].Fee, c.account(t, c.alice.Pubkey()).Lamports)
	closed := c.account(t, escrowPub)
	assert.Equal(t, uint64(1), closed.Lamports)
	assert.Equal(t, core.SystemProgramID, closed.Owner)
	assert.Empty(t, closed.Data)

	aliceLedger, err := escrow.DecodeGameAccount(c.account(t, aliceGamePub).Data)
	require.NoError(t, err)
	assert.True(t, aliceLedger.Owns(42))
	bobLedger, err := escrow.DecodeGameAccount(c.account(t, bobGamePub).Data)
	require.NoError(t, err)
	assert.False(t, bobLedger.Rents(42))
}
