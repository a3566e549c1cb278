package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"github.com/vocdoni/omnibatch/config"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/service"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"gopkg.in/natefinch/lumberjack.v2"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-output", Usage: "stdout, stderr or a file path"},
		&cli.StringFlag{Name: "api-host", Usage: "address the API listens on"},
		&cli.IntFlag{Name: "api-port", Usage: "port the API listens on"},
		&cli.IntFlag{Name: "workers", Usage: "computation workers"},
		&cli.StringFlag{Name: "netting-mode", Usage: "sold-units or parity"},
		&cli.StringFlag{Name: "oracle", Usage: "address allowed to sign price updates"},
		&cli.BoolFlag{Name: "executor", Usage: "drive the batch lifecycle as operator"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(configPath(cctx))
		if err != nil {
			return err
		}
		applyFlags(cctx, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var errOut io.Writer
		if cfg.Log.ErrorFile != "" {
			errOut = &lumberjack.Logger{Filename: cfg.Log.ErrorFile, MaxSize: 100, MaxBackups: 3}
		}
		log.Init(cfg.Log.Level, cfg.Log.Output, errOut)

		ctx, cancel := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runNode(ctx, cfg)
	},
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cctx *cli.Context, cfg *config.Config) {
	if cctx.IsSet(flagDataDir) {
		cfg.DataDir = cctx.String(flagDataDir)
	}
	if cctx.IsSet("log-level") {
		cfg.Log.Level = cctx.String("log-level")
	}
	if cctx.IsSet("log-output") {
		cfg.Log.Output = cctx.String("log-output")
	}
	if cctx.IsSet("api-host") {
		cfg.API.Host = cctx.String("api-host")
	}
	if cctx.IsSet("api-port") {
		cfg.API.Port = cctx.Int("api-port")
	}
	if cctx.IsSet("workers") {
		cfg.Sequencer.Workers = cctx.Int("workers")
	}
	if cctx.IsSet("netting-mode") {
		cfg.Sequencer.NettingMode = cctx.String("netting-mode")
	}
	if cctx.IsSet("oracle") {
		cfg.Keys.Oracle = cctx.String("oracle")
	}
	if cctx.IsSet("executor") {
		cfg.Executor.Enabled = cctx.Bool("executor")
	}
}

func runNode(ctx context.Context, cfg *config.Config) error {
	authority, err := cfg.AuthorityKeys()
	if err != nil {
		return err
	}
	operator, err := cfg.OperatorKeys()
	if err != nil {
		return err
	}
	clusterKeys, err := cfg.ClusterKeys()
	if err != nil {
		return err
	}
	_, clusterHex := clusterKeys.HexString()
	seed, err := hex.DecodeString(clusterHex)
	if err != nil {
		return err
	}
	cluster, err := mpc.NewClusterFromSeed(clusterKeys, seed)
	if err != nil {
		return err
	}

	database, err := metadb.New(db.TypePebble, filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	var (
		feed   oracle.Feed = oracle.NewStatic(types.ReferencePrices)
		signed *oracle.Signed
	)
	if cfg.Keys.Oracle != "" {
		signed = oracle.NewSigned(common.HexToAddress(cfg.Keys.Oracle), types.ReferencePrices)
		feed = signed
	}

	opts, err := cfg.SequencerOptions()
	if err != nil {
		return err
	}
	seqSrv, err := service.NewSequencer(stg, cluster, feed, opts)
	if err != nil {
		return err
	}
	seq := seqSrv.Sequencer()
	if err := bootstrapPool(seq, cfg, authority.Address(), operator.Address()); err != nil {
		return err
	}

	if err := seqSrv.Start(ctx); err != nil {
		return err
	}
	defer seqSrv.Stop()

	apiSrv := service.NewAPI(seq, signed, cfg.API.Host, cfg.API.Port)
	if err := apiSrv.Start(ctx); err != nil {
		return err
	}
	defer apiSrv.Stop()

	if cfg.Executor.Enabled {
		executor := service.NewBatchExecutor(seq, operator.Address(), cfg.Executor.Interval)
		if err := executor.Start(ctx); err != nil {
			return err
		}
		defer executor.Stop()
	}

	log.Infow("node started",
		"dataDir", cfg.DataDir,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"authority", authority.AddressString(),
		"operator", operator.AddressString(),
		"cluster", cluster.Address().Hex(),
		"executor", cfg.Executor.Enabled)
	<-ctx.Done()
	log.Infow("shutting down")
	return nil
}

// bootstrapPool initializes the pool on first boot. On later boots it checks
// the node runs the cluster the pool was created with.
func bootstrapPool(seq *sequencer.Sequencer, cfg *config.Config, authority, operator common.Address) error {
	pool, err := seq.Storage().Pool()
	switch {
	case err == nil:
		if pool.ClusterAddress != seq.Cluster().Address() {
			return fmt.Errorf("pool registered cluster %s, node runs %s",
				pool.ClusterAddress.Hex(), seq.Cluster().Address().Hex())
		}
		if pool.ClusterPubKey != seq.Cluster().PublicKey() {
			return fmt.Errorf("cluster encryption key does not match the pool")
		}
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}
	params := sequencer.InitParams{
		Operator:              operator,
		ExecutionFeeBps:       cfg.Pool.ExecutionFeeBps,
		ExecutionTriggerCount: cfg.Pool.ExecutionTriggerCount,
	}
	if cfg.Pool.Treasury != "" {
		params.Treasury = common.HexToAddress(cfg.Pool.Treasury)
	}
	if err := seq.Initialize(authority, params); err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}
	return nil
}
