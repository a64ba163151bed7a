package config

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
)

// GenesisConfig describes the ledger's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // base58 pubkey → initial lamports
}

// GenesisAccount is one decoded alloc entry.
type GenesisAccount struct {
	Key      core.Pubkey
	Lamports uint64
}

// Accounts decodes Alloc in key order.
func (g GenesisConfig) Accounts() ([]GenesisAccount, error) {
	out := make([]GenesisAccount, 0, len(g.Alloc))
	for k, lamports := range g.Alloc {
		key, err := core.PubkeyFromString(k)
		if err != nil {
			return nil, errors.Wrapf(err, "genesis alloc %q", k)
		}
		out = append(out, GenesisAccount{Key: key, Lamports: lamports})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// CreateGenesisSlot credits every alloc account in state's write buffer and
// returns slot 0 carrying the resulting state root. The caller persists the
// buffer together with the slot via Ledger.AddSlot.
func CreateGenesisSlot(cfg *Config, state core.State) (*core.Slot, error) {
	accounts, err := cfg.Genesis.Accounts()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if err := state.SetAccount(&core.Account{Key: a.Key, Lamports: a.Lamports, Owner: core.SystemProgramID}); err != nil {
			return nil, err
		}
	}

	slot := core.NewSlot(0, "", nil)
	slot.StateRoot = state.ComputeRoot()
	slot.TxRoot = core.ComputeTxRoot([]string{cfg.Genesis.ChainID})
	return slot, nil
}
