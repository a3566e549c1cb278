// Command omnibatchd runs an omnibatch node: the sequencer, its computation
// cluster, the HTTP API and the batch executor.
//
// Create a node with its keys and start it:
//
//	omnibatchd init
//	omnibatchd run --api-port 9090
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"github.com/vocdoni/omnibatch/config"
)

const (
	flagDataDir = "datadir"
	flagConfig  = "config"
)

func main() {
	app := &cli.App{
		Name:                 "omnibatchd",
		Usage:                "confidential batch auction node",
		Version:              "0.1.0",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagDataDir,
				EnvVars: []string{"OMNIBATCH_DATADIR"},
				Value:   config.Default().DataDir,
				Usage:   "directory holding the database and the config file",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				EnvVars: []string{"OMNIBATCH_CONFIG"},
				Usage:   "path of the YAML config file (default <datadir>/" + config.FileName + ")",
			},
		},
		Commands: []*cli.Command{
			initCmd,
			runCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

// configPath returns the config file selected by the global flags.
func configPath(cctx *cli.Context) string {
	if p := cctx.String(flagConfig); p != "" {
		return p
	}
	return filepath.Join(cctx.String(flagDataDir), config.FileName)
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "write a config file with fresh authority and cluster keys",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "oracle",
			Usage: "address allowed to sign price updates",
		},
		&cli.StringFlag{
			Name:  "treasury",
			Usage: "treasury address of the pool",
		},
	},
	Action: func(cctx *cli.Context) error {
		path := configPath(cctx)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
		cfg := config.Default()
		cfg.DataDir = cctx.String(flagDataDir)
		cfg.Keys.Oracle = cctx.String("oracle")
		cfg.Pool.Treasury = cctx.String("treasury")
		if err := cfg.GenerateKeys(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		auth, err := cfg.AuthorityKeys()
		if err != nil {
			return err
		}
		fmt.Printf("config written to %s\nauthority %s\n", path, auth.AddressString())
		return nil
	},
}
