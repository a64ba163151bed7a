// Command gamescrow runs a ledger node and drives the escrow program from
// the command line.
package main

import (
	"os"

	"github.com/allisson/go-env"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tolelom/gamescrow/logging"
)

func main() {
	app := &cli.App{
		Name:  "gamescrow",
		Usage: "game asset escrow ledger",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "pretty",
				Usage:   "human-readable logs",
				EnvVars: []string{"GAMESCROW_PRETTY_LOGS"},
			},
		},
		Before: func(c *cli.Context) error {
			logging.Setup(env.GetBool("DEBUG_LOGS", false), c.Bool("pretty"))
			return nil
		},
		Commands: []*cli.Command{
			nodeCommand,
			keygenCommand,
			initGameCommand,
			addAssetCommand,
			createEscrowCommand,
			takeEscrowCommand,
			revertEscrowCommand,
			airdropCommand,
			showCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
