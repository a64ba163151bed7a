package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tolelom/gamescrow/client"
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/wallet"
)

var rpcFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "url",
		Value:   "http://127.0.0.1:8899",
		Usage:   "node JSON-RPC endpoint",
		EnvVars: []string{"GAMESCROW_RPC_URL"},
	},
	&cli.StringFlag{
		Name:    "token",
		Usage:   "RPC bearer token",
		EnvVars: []string{"GAMESCROW_RPC_AUTH_TOKEN"},
	},
}

var signerFlag = &cli.StringFlag{
	Name:     "keypair",
	Aliases:  []string{"k"},
	Usage:    "keystore or keypair file of the signer",
	Required: true,
	EnvVars:  []string{"GAMESCROW_KEYPAIR"},
}

func withFlags(extra ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, rpcFlags...), extra...)
}

func newClient(c *cli.Context) *client.Client {
	return client.New(c.String("url"), client.WithAuthToken(c.String("token")))
}

func signer(c *cli.Context) (crypto.PrivateKey, error) {
	priv, err := wallet.Load(c.String("keypair"), password())
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", c.String("keypair"))
	}
	return priv, nil
}

func pubkeyArg(c *cli.Context, name string) (core.Pubkey, error) {
	v := c.String(name)
	if v == "" {
		return core.Pubkey{}, errors.Errorf("--%s is required", name)
	}
	key, err := core.PubkeyFromString(v)
	if err != nil {
		return core.Pubkey{}, errors.Wrapf(err, "--%s", name)
	}
	return key, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints the receipt of a settled transaction. A failed receipt is
// printed before its error is returned.
func report(r *core.Receipt, err error) error {
	if r != nil {
		if perr := printJSON(r); perr != nil {
			return perr
		}
	}
	return err
}

var initGameCommand = &cli.Command{
	Name:  "init-game",
	Usage: "Creates and initialises a game account owned by the signer",
	Flags: withFlags(signerFlag),
	Action: func(c *cli.Context) error {
		owner, err := signer(c)
		if err != nil {
			return err
		}
		game, r, err := newClient(c).InitGameAccount(c.Context, owner)
		if err != nil {
			return report(r, err)
		}
		fmt.Printf("game account: %s\n", game)
		return report(r, nil)
	},
}

var addAssetCommand = &cli.Command{
	Name:  "add-asset",
	Usage: "Adds an asset id to the signer's game account",
	Flags: withFlags(signerFlag,
		&cli.StringFlag{Name: "game", Usage: "game account address", Required: true},
		&cli.Uint64Flag{Name: "asset", Usage: "asset id", Required: true},
	),
	Action: func(c *cli.Context) error {
		owner, err := signer(c)
		if err != nil {
			return err
		}
		game, err := pubkeyArg(c, "game")
		if err != nil {
			return err
		}
		return report(newClient(c).AddAsset(c.Context, owner, game, c.Uint64("asset")))
	},
}

var createEscrowCommand = &cli.Command{
	Name:  "create-escrow",
	Usage: "Locks lamports in a new escrow against an owned asset",
	Flags: withFlags(signerFlag,
		&cli.StringFlag{Name: "game", Usage: "initialiser game account", Required: true},
		&cli.Uint64Flag{Name: "asset", Usage: "asset id", Required: true},
		&cli.Uint64Flag{Name: "amount", Usage: "lamports paid to the taker", Required: true},
		&cli.Uint64Flag{Name: "minutes", Usage: "rental time recorded in the escrow"},
	),
	Action: func(c *cli.Context) error {
		initialiser, err := signer(c)
		if err != nil {
			return err
		}
		game, err := pubkeyArg(c, "game")
		if err != nil {
			return err
		}
		addr, r, err := newClient(c).CreateEscrow(c.Context, initialiser, game, c.Uint64("amount"), c.Uint64("minutes"), c.Uint64("asset"))
		if err != nil {
			return report(r, err)
		}
		fmt.Printf("escrow: %s\n", addr)
		return report(r, nil)
	},
}

var takeEscrowCommand = &cli.Command{
	Name:  "take-escrow",
	Usage: "Takes an open escrow into the signer's game account",
	Flags: withFlags(signerFlag,
		&cli.StringFlag{Name: "escrow", Usage: "escrow address", Required: true},
		&cli.StringFlag{Name: "game", Usage: "taker game account", Required: true},
	),
	Action: func(c *cli.Context) error {
		taker, err := signer(c)
		if err != nil {
			return err
		}
		escrowAddr, err := pubkeyArg(c, "escrow")
		if err != nil {
			return err
		}
		game, err := pubkeyArg(c, "game")
		if err != nil {
			return err
		}
		return report(newClient(c).TakeEscrow(c.Context, taker, escrowAddr, game))
	},
}

var revertEscrowCommand = &cli.Command{
	Name:  "revert-escrow",
	Usage: "Cancels an open escrow and refunds the initialiser",
	Flags: withFlags(signerFlag,
		&cli.StringFlag{Name: "escrow", Usage: "escrow address", Required: true},
	),
	Action: func(c *cli.Context) error {
		payer, err := signer(c)
		if err != nil {
			return err
		}
		escrowAddr, err := pubkeyArg(c, "escrow")
		if err != nil {
			return err
		}
		return report(newClient(c).RevertEscrow(c.Context, payer, escrowAddr))
	},
}

var airdropCommand = &cli.Command{
	Name:  "airdrop",
	Usage: "Requests lamports from the node faucet",
	Flags: withFlags(
		&cli.StringFlag{Name: "to", Usage: "recipient address", Required: true},
		&cli.Uint64Flag{Name: "lamports", Usage: "amount", Value: 1_000_000_000},
	),
	Action: func(c *cli.Context) error {
		to, err := pubkeyArg(c, "to")
		if err != nil {
			return err
		}
		cl := newClient(c)
		id, err := cl.RequestAirdrop(c.Context, to, c.Uint64("lamports"))
		if err != nil {
			return err
		}
		return report(cl.Confirm(c.Context, id))
	},
}

var showCommand = &cli.Command{
	Name:  "show",
	Usage: "Prints an account, game account, escrow, receipt or slot",
	Subcommands: []*cli.Command{
		{
			Name:      "account",
			ArgsUsage: "address",
			Flags:     rpcFlags,
			Action: func(c *cli.Context) error {
				key, err := core.PubkeyFromString(c.Args().First())
				if err != nil {
					return err
				}
				acc, err := newClient(c).AccountInfo(c.Context, key)
				if err != nil {
					return err
				}
				return printJSON(acc)
			},
		},
		{
			Name:      "game",
			ArgsUsage: "address",
			Flags:     rpcFlags,
			Action: func(c *cli.Context) error {
				key, err := core.PubkeyFromString(c.Args().First())
				if err != nil {
					return err
				}
				g, err := newClient(c).GameAccount(c.Context, key)
				if err != nil {
					return err
				}
				return printJSON(g)
			},
		},
		{
			Name:      "escrow",
			ArgsUsage: "address",
			Flags:     rpcFlags,
			Action: func(c *cli.Context) error {
				key, err := core.PubkeyFromString(c.Args().First())
				if err != nil {
					return err
				}
				e, err := newClient(c).Escrow(c.Context, key)
				if err != nil {
					return err
				}
				return printJSON(e)
			},
		},
		{
			Name:  "open-escrows",
			Flags: rpcFlags,
			Action: func(c *cli.Context) error {
				ids, err := newClient(c).OpenEscrows(c.Context)
				if err != nil {
					return err
				}
				return printJSON(ids)
			},
		},
		{
			Name:      "tx",
			ArgsUsage: "tx_id",
			Flags:     rpcFlags,
			Action: func(c *cli.Context) error {
				r, err := newClient(c).Transaction(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				return printJSON(r)
			},
		},
		{
			Name:      "slot",
			Usage:     "Prints the latest slot, or the numbered one",
			ArgsUsage: "[number]",
			Flags: withFlags(&cli.StringFlag{
				Name:    "leader",
				Usage:   "reject slots not sealed by this sequencer pubkey",
				EnvVars: []string{"GAMESCROW_LEADER"},
			}),
			Action: func(c *cli.Context) error {
				opts := []client.Option{client.WithAuthToken(c.String("token"))}
				if v := c.String("leader"); v != "" {
					leader, err := core.PubkeyFromString(v)
					if err != nil {
						return errors.Wrap(err, "--leader")
					}
					opts = append(opts, client.WithLeader(leader))
				}
				cl := client.New(c.String("url"), opts...)

				var (
					s   *core.Slot
					err error
				)
				if c.Args().Present() {
					n, perr := strconv.ParseUint(c.Args().First(), 10, 64)
					if perr != nil {
						return errors.Wrap(perr, "slot number")
					}
					s, err = cl.SlotByNumber(c.Context, n)
				} else {
					s, err = cl.Slot(c.Context)
				}
				if err != nil {
					return err
				}
				return printJSON(s)
			},
		},
	},
}
