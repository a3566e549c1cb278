package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/netting"
	"github.com/vocdoni/omnibatch/types"
)

func TestDefault(t *testing.T) {
	c := qt.New(t)
	cfg := Default()
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Sequencer.SlippageBps, qt.Equals, uint16(100))
	c.Assert(cfg.Pool.ExecutionTriggerCount, qt.Equals, uint8(8))
	c.Assert(cfg.Sequencer.FaucetCap, qt.Equals, uint64(1_000_000_000))
	c.Assert(cfg.Sequencer.NettingMode, qt.Equals, netting.OutputInSoldUnits.String())

	_, err := cfg.AuthorityKeys()
	c.Assert(err, qt.ErrorMatches, "authority key not configured")
}

func TestLoad(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	// a missing file gives the defaults
	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, Default())

	data := []byte(`
data_dir: /var/lib/omnibatch
api:
  port: 8080
sequencer:
  poll_interval: 50ms
  netting_mode: parity
pool:
  execution_trigger_count: 3
  execution_fee_bps: 30
keys:
  oracle: "0x00000000000000000000000000000000000000aa"
`)
	c.Assert(os.WriteFile(path, data, 0o600), qt.IsNil)
	cfg, err = Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.DataDir, qt.Equals, "/var/lib/omnibatch")
	c.Assert(cfg.API.Port, qt.Equals, 8080)
	// fields not in the file keep their defaults
	c.Assert(cfg.API.Host, qt.Equals, "0.0.0.0")
	c.Assert(cfg.Sequencer.Workers, qt.Equals, 2)
	c.Assert(cfg.Sequencer.PollInterval, qt.Equals, 50*time.Millisecond)
	c.Assert(cfg.Pool.ExecutionTriggerCount, qt.Equals, uint8(3))

	opts, err := cfg.SequencerOptions()
	c.Assert(err, qt.IsNil)
	c.Assert(opts.NettingMode, qt.Equals, netting.OutputAtParity)
	c.Assert(opts.PollInterval, qt.Equals, 50*time.Millisecond)
	c.Assert(opts.SlippageBps, qt.Equals, uint16(types.DefaultSlippageBps))

	c.Assert(os.WriteFile(path, []byte("api: [1"), 0o600), qt.IsNil)
	_, err = Load(path)
	c.Assert(err, qt.ErrorMatches, "parse config .*")
}

func TestSaveAndKeys(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "node", FileName)

	cfg := Default()
	c.Assert(cfg.GenerateKeys(), qt.IsNil)
	c.Assert(cfg.Keys.Authority, qt.Not(qt.Equals), "")
	c.Assert(cfg.Keys.Cluster, qt.Not(qt.Equals), cfg.Keys.Authority)
	authority := cfg.Keys.Authority
	c.Assert(cfg.GenerateKeys(), qt.IsNil)
	c.Assert(cfg.Keys.Authority, qt.Equals, authority)
	c.Assert(cfg.Save(path), qt.IsNil)

	loaded, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded, qt.DeepEquals, cfg)

	auth, err := loaded.AuthorityKeys()
	c.Assert(err, qt.IsNil)
	op, err := loaded.OperatorKeys()
	c.Assert(err, qt.IsNil)
	c.Assert(op.Address(), qt.Equals, auth.Address())
	cl, err := loaded.ClusterKeys()
	c.Assert(err, qt.IsNil)
	c.Assert(cl.Address(), qt.Not(qt.Equals), auth.Address())
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	for name, mutate := range map[string]func(*Config){
		"invalid api port .*":         func(cfg *Config) { cfg.API.Port = 0 },
		"invalid worker count .*":     func(cfg *Config) { cfg.Sequencer.Workers = 0 },
		"max attempts .*":             func(cfg *Config) { cfg.Sequencer.MaxAttempts = 0 },
		"slippage .*":                 func(cfg *Config) { cfg.Sequencer.SlippageBps = 20_000 },
		"unknown netting mode .*":     func(cfg *Config) { cfg.Sequencer.NettingMode = "best" },
		"execution fee .*":            func(cfg *Config) { cfg.Pool.ExecutionFeeBps = 5000 },
		"invalid treasury address .*": func(cfg *Config) { cfg.Pool.Treasury = "treasury" },
		"invalid oracle address .*":   func(cfg *Config) { cfg.Keys.Oracle = "0x12" },
		"invalid executor interval .*": func(cfg *Config) {
			cfg.Executor.Interval = 0
		},
		"invalid operator key.*": func(cfg *Config) { cfg.Keys.Operator = "zz" },
	} {
		cfg := Default()
		mutate(cfg)
		c.Assert(cfg.Validate(), qt.ErrorMatches, name)
	}
}
