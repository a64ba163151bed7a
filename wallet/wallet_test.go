package wallet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/wallet"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")

	require.NoError(t, wallet.SaveKey(path, "hunter2", w.PrivKey()))
	priv, err := wallet.LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.Pubkey(), core.PubkeyOf(priv))

	_, err = wallet.LoadKey(path, "wrong")
	assert.ErrorIs(t, err, wallet.ErrWrongPassword)
}

func TestLoadDetectsFormat(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	dir := t.TempDir()

	plain := filepath.Join(dir, "id.json")
	require.NoError(t, wallet.SaveKeypair(plain, w.PrivKey()))
	priv, err := wallet.Load(plain, "")
	require.NoError(t, err)
	assert.Equal(t, w.Pubkey(), core.PubkeyOf(priv))

	sealed := filepath.Join(dir, "sealed.json")
	require.NoError(t, wallet.SaveKey(sealed, "pw", w.PrivKey()))
	priv, err = wallet.Load(sealed, "pw")
	require.NoError(t, err)
	assert.Equal(t, w.Pubkey(), core.PubkeyOf(priv))
}

func TestLoadKeypairRejectsBadBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 300]`), 0o600))
	_, err := wallet.LoadKeypair(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 3]`), 0o600))
	_, err = wallet.LoadKeypair(path)
	assert.Error(t, err)
}

func TestTransferIsSigned(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	to, err := wallet.Generate()
	require.NoError(t, err)

	tx := w.Transfer(to.Pubkey(), 99)
	require.NoError(t, tx.Verify())
	assert.Equal(t, w.Pubkey(), tx.FeePayer)
	require.Len(t, tx.Instructions, 1)
	assert.Equal(t, core.SystemProgramID, tx.Instructions[0].ProgramID)
	assert.Equal(t, tx.Hash(), tx.ID)
}
