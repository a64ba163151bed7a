package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
)

func newAuthority(t *testing.T) *Authority {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return New(key)
}

func sealedPair(a *Authority) (genesis, next *core.Slot) {
	genesis = core.NewSlot(0, "", nil)
	genesis.StateRoot = "root0"
	a.Seal(genesis)

	next = core.NewSlot(1, genesis.StateRoot, nil)
	next.StateRoot = "root1"
	a.Seal(next)
	return genesis, next
}

func TestSealedChainValidates(t *testing.T) {
	a := newAuthority(t)
	genesis, next := sealedPair(a)

	assert.Equal(t, a.Leader(), next.Leader)
	require.NoError(t, ValidateSlot(genesis, nil, a.Leader()))
	require.NoError(t, ValidateSlot(next, genesis, a.Leader()))
	require.NoError(t, ValidateSlot(next, genesis, core.Pubkey{}))
}

func TestTamperedSlotFails(t *testing.T) {
	a := newAuthority(t)
	_, next := sealedPair(a)

	next.StateRoot = "forged"
	assert.Error(t, VerifySeal(next, a.Leader()))

	unsealed := core.NewSlot(2, "x", nil)
	assert.ErrorIs(t, VerifySeal(unsealed, core.Pubkey{}), ErrUnsealed)
}

func TestWrongLeader(t *testing.T) {
	a, other := newAuthority(t), newAuthority(t)
	genesis, _ := sealedPair(a)
	assert.ErrorIs(t, VerifySeal(genesis, other.Leader()), ErrWrongLeader)
}

func TestBrokenChain(t *testing.T) {
	a := newAuthority(t)
	genesis, next := sealedPair(a)

	assert.ErrorIs(t, ValidateSlot(next, nil, a.Leader()), ErrBrokenChain)

	gap := core.NewSlot(2, genesis.StateRoot, nil)
	a.Seal(gap)
	assert.ErrorIs(t, ValidateSlot(gap, genesis, a.Leader()), ErrBrokenChain)

	fork := core.NewSlot(1, "elsewhere", nil)
	a.Seal(fork)
	assert.ErrorIs(t, ValidateSlot(fork, genesis, a.Leader()), ErrBrokenChain)
}
