package wallet

import (
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/program/system"
)

// Wallet holds a signing key and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  core.Pubkey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: core.PubkeyOf(priv)}
}

// Generate creates a Wallet with a freshly generated key.
func Generate() (*Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Pubkey returns the account address.
func (w *Wallet) Pubkey() core.Pubkey {
	return w.pub
}

// NewTx creates a transaction paid for by the wallet and signed by it and
// every key in extra.
func (w *Wallet) NewTx(ixs []core.Instruction, extra ...crypto.PrivateKey) *core.Transaction {
	tx := core.NewTransaction(w.pub, ixs...)
	tx.Sign(append([]crypto.PrivateKey{w.priv}, extra...)...)
	return tx
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(to core.Pubkey, lamports uint64) *core.Transaction {
	return w.NewTx([]core.Instruction{system.Transfer(w.pub, to, lamports)})
}
