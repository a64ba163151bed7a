package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/allisson/go-env"
	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/vm"
)

// RentConfig holds the rent-exemption parameters.
type RentConfig struct {
	LamportsPerByteYear uint64  `json:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `json:"exemption_threshold"`
}

// FaucetConfig gates the requestAirdrop RPC method.
type FaucetConfig struct {
	Enabled bool   `json:"enabled"`
	Limit   uint64 `json:"limit"` // max lamports per request
}

// Config holds all node configuration.
type Config struct {
	NodeID          string        `json:"node_id"`
	DataDir         string        `json:"data_dir"`
	DBBackend       string        `json:"db_backend"` // "leveldb" or "bolt"
	RPCPort         int           `json:"rpc_port"`
	RPCAuthToken    string        `json:"rpc_auth_token,omitempty"`
	RPCTLS          *TLSConfig    `json:"rpc_tls,omitempty"`
	SlotIntervalMS  int           `json:"slot_interval_ms"`
	MaxSlotTxs      int           `json:"max_slot_txs"` // 0 → 500
	MempoolSize     int           `json:"mempool_size"`
	FeePerSignature uint64        `json:"fee_per_signature"`
	Rent            RentConfig    `json:"rent"`
	DuplicateAssets string        `json:"duplicate_assets"` // "allow" or "reject"
	Faucet          FaucetConfig  `json:"faucet"`
	Debug           bool          `json:"debug"`
	Genesis         GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		DBBackend:       "leveldb",
		RPCPort:         8899,
		SlotIntervalMS:  400,
		MaxSlotTxs:      500,
		FeePerSignature: 5000,
		Rent: RentConfig{
			LamportsPerByteYear: vm.DefaultRent.LamportsPerByteYear,
			ExemptionThreshold:  vm.DefaultRent.ExemptionThreshold,
		},
		DuplicateAssets: escrow.DuplicatesAllowed.String(),
		Faucet:          FaucetConfig{Enabled: true, Limit: 10_000_000_000},
		Genesis: GenesisConfig{
			ChainID: "gamescrow-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path. An empty path yields the
// defaults. Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays GAMESCROW_* environment variables and DEBUG_LOGS.
func (c *Config) ApplyEnv() {
	c.DataDir = env.GetString("GAMESCROW_DATA_DIR", c.DataDir)
	c.DBBackend = env.GetString("GAMESCROW_DB_BACKEND", c.DBBackend)
	c.RPCPort = env.GetInt("GAMESCROW_RPC_PORT", c.RPCPort)
	c.RPCAuthToken = env.GetString("GAMESCROW_RPC_AUTH_TOKEN", c.RPCAuthToken)
	c.DuplicateAssets = env.GetString("GAMESCROW_DUPLICATE_ASSETS", c.DuplicateAssets)
	c.Debug = env.GetBool("DEBUG_LOGS", c.Debug)
}

// Validate rejects settings the node cannot start with.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case "", "leveldb", "bolt", "bbolt":
	default:
		return errors.Errorf("unknown db_backend %q", c.DBBackend)
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return errors.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	if c.SlotIntervalMS <= 0 {
		return errors.Errorf("slot_interval_ms must be positive, got %d", c.SlotIntervalMS)
	}
	if c.Rent.ExemptionThreshold < 0 {
		return errors.New("rent.exemption_threshold must not be negative")
	}
	if _, err := escrow.ParseDuplicatePolicy(c.DuplicateAssets); err != nil {
		return err
	}
	if _, err := c.Genesis.Accounts(); err != nil {
		return err
	}
	return nil
}

// SlotInterval returns the sequencer tick.
func (c *Config) SlotInterval() time.Duration {
	return time.Duration(c.SlotIntervalMS) * time.Millisecond
}

// VMConfig returns the runtime parameters.
func (c *Config) VMConfig() vm.Config {
	return vm.Config{
		FeePerSignature: c.FeePerSignature,
		Rent: vm.Rent{
			LamportsPerByteYear: c.Rent.LamportsPerByteYear,
			ExemptionThreshold:  c.Rent.ExemptionThreshold,
		},
	}
}

// DuplicatePolicy returns the parsed AddAsset policy. Validate has already
// rejected unknown values.
func (c *Config) DuplicatePolicy() escrow.DuplicatePolicy {
	p, _ := escrow.ParseDuplicatePolicy(c.DuplicateAssets)
	return p
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
