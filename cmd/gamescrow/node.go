package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/allisson/go-env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tolelom/gamescrow/config"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/logging"
	"github.com/tolelom/gamescrow/node"
	"github.com/tolelom/gamescrow/storage"
	"github.com/tolelom/gamescrow/wallet"
)

// faucetGenesisLamports funds the faucet key on a fresh ledger when the
// genesis alloc does not mention it.
const faucetGenesisLamports = 1_000_000_000_000_000

// password reads the keystore password from the environment, never from
// flags, which leak via ps.
func password() string {
	pw := env.GetString("GAMESCROW_PASSWORD", "")
	if pw == "" {
		log.Warn().Msg("GAMESCROW_PASSWORD not set, keystore uses an empty password")
	}
	return pw
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("config file not found, using defaults")
		path = ""
	}
	return config.Load(path)
}

var nodeCommand = &cli.Command{
	Name:  "node",
	Usage: "Runs the sequencer and the JSON-RPC server",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to config file"},
		&cli.StringFlag{Name: "key", Value: "node.key", Usage: "keystore or keypair of the faucet signer"},
		&cli.StringFlag{Name: "sequencer-key", Usage: "keystore or keypair that seals slots (ephemeral if unset)"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return errors.Wrap(err, "config")
		}
		// Config may enable debug even when DEBUG_LOGS is unset.
		logging.Setup(cfg.Debug, c.Bool("pretty"))

		var faucet crypto.PrivateKey
		if cfg.Faucet.Enabled {
			faucet, err = wallet.Load(c.String("key"), password())
			if err != nil {
				return errors.Wrapf(err, "load faucet key %s", c.String("key"))
			}
			addr := wallet.New(faucet).Pubkey().String()
			if cfg.Genesis.Alloc == nil {
				cfg.Genesis.Alloc = map[string]uint64{}
			}
			if _, ok := cfg.Genesis.Alloc[addr]; !ok {
				cfg.Genesis.Alloc[addr] = faucetGenesisLamports
			}
		}

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir data dir")
		}
		db, err := storage.Open(cfg.DBBackend, filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return errors.Wrap(err, "open db")
		}
		defer db.Close()

		var opts []node.Option
		if path := c.String("sequencer-key"); path != "" {
			key, err := wallet.Load(path, password())
			if err != nil {
				return errors.Wrapf(err, "load sequencer key %s", path)
			}
			opts = append(opts, node.WithSequencerKey(key))
		}
		n, err := node.New(cfg, db, faucet, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Info().Str("node_id", cfg.NodeID).Int("rpc_port", cfg.RPCPort).Str("leader", n.Authority.Leader().String()).
			Str("duplicate_assets", cfg.DuplicateAssets).Msg("node starting")
		if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info().Msg("shutdown complete")
		return nil
	},
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "Generates a signing key",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Value: "node.key", Usage: "output path"},
		&cli.BoolFlag{Name: "plain", Usage: "write an unencrypted keypair file instead of a keystore"},
	},
	Action: func(c *cli.Context) error {
		w, err := wallet.Generate()
		if err != nil {
			return err
		}
		out := c.String("out")
		if c.Bool("plain") {
			err = wallet.SaveKeypair(out, w.PrivKey())
		} else {
			err = wallet.SaveKey(out, password(), w.PrivKey())
		}
		if err != nil {
			return err
		}
		fmt.Printf("pubkey: %s\nsaved to: %s\n", w.Pubkey(), out)
		return nil
	},
}
