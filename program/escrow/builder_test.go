package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/core"
)

func TestTakeEscrowMetas(t *testing.T) {
	taker, esc, initGame, takerGame := core.ProgramID("t"), core.ProgramID("e"), core.ProgramID("ig"), core.ProgramID("tg")
	ix := NewTakeEscrow(taker, esc, initGame, takerGame)

	assert.Equal(t, ProgramID, ix.ProgramID)
	require.Len(t, ix.Accounts, 4)
	assert.Equal(t, core.AccountMeta{Pubkey: taker, IsSigner: true, IsWritable: true}, ix.Accounts[0])
	for _, m := range ix.Accounts[1:] {
		assert.True(t, m.IsWritable)
		assert.False(t, m.IsSigner)
	}
	decoded, err := Unpack(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, TakeEscrow{}, decoded)
}

func TestRevertNeedsNoSigner(t *testing.T) {
	ix := NewRevertEscrow(core.ProgramID("i"), core.ProgramID("e"), core.ProgramID("ig"), core.Pubkey{})
	for _, m := range ix.Accounts {
		assert.False(t, m.IsSigner)
	}
	assert.True(t, ix.Accounts[0].IsWritable)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.False(t, ix.Accounts[2].IsWritable)
}

func TestCreateEscrowFundsAmountPlusReserve(t *testing.T) {
	payer, esc, game := core.ProgramID("i"), core.ProgramID("e"), core.ProgramID("g")
	ixs := CreateEscrow(payer, esc, game, 1_000, 250, 30, 9)
	require.Len(t, ixs, 2)

	assert.Equal(t, core.SystemProgramID, ixs[0].ProgramID)
	assert.Equal(t, []core.AccountMeta{
		{Pubkey: payer, IsSigner: true, IsWritable: true},
		{Pubkey: esc, IsSigner: true, IsWritable: true},
	}, ixs[0].Accounts)

	decoded, err := Unpack(ixs[1].Data)
	require.NoError(t, err)
	assert.Equal(t, InitEscrow{Amount: 250, Time: 30, AssetID: 9}, decoded)
	assert.Equal(t, []core.AccountMeta{
		{Pubkey: esc, IsWritable: true},
		{Pubkey: game},
		{Pubkey: payer, IsSigner: true},
	}, ixs[1].Accounts)
}
