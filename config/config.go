// Package config holds the node configuration. A Config is read from a YAML
// file on top of Default and then overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/netting"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/types"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file inside the data dir.
const FileName = "omnibatch.yaml"

// Config is the node configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Pool      PoolConfig      `yaml:"pool"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Keys      KeysConfig      `yaml:"keys"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	// ErrorFile, if set, receives a copy of warnings and errors.
	ErrorFile string `yaml:"error_file"`
}

type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SequencerConfig tunes the computation queue and the netting engine.
type SequencerConfig struct {
	Workers      int           `yaml:"workers"`
	MaxAttempts  uint32        `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SlippageBps  uint16        `yaml:"slippage_bps"`
	NettingMode  string        `yaml:"netting_mode"`
	FaucetCap    uint64        `yaml:"faucet_cap"`
}

// PoolConfig is used once, when the node initializes the pool on first boot.
type PoolConfig struct {
	Treasury              string `yaml:"treasury"`
	ExecutionFeeBps       uint16 `yaml:"execution_fee_bps"`
	ExecutionTriggerCount uint8  `yaml:"execution_trigger_count"`
}

// ExecutorConfig drives the batch lifecycle on behalf of the operator.
type ExecutorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// KeysConfig holds hex encoded secp256k1 private keys. Oracle is an address:
// when set, prices are accepted from updates it signs, otherwise the node
// serves the reference prices.
type KeysConfig struct {
	Authority string `yaml:"authority"`
	Operator  string `yaml:"operator"`
	Cluster   string `yaml:"cluster"`
	Oracle    string `yaml:"oracle"`
}

// Default returns the configuration of a local node.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir: filepath.Join(home, ".omnibatch"),
		Log: LogConfig{
			Level:  "info",
			Output: "stdout",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Sequencer: SequencerConfig{
			Workers:      2,
			MaxAttempts:  3,
			PollInterval: 200 * time.Millisecond,
			SlippageBps:  types.DefaultSlippageBps,
			NettingMode:  netting.OutputInSoldUnits.String(),
			FaucetCap:    types.FaucetMaxPerUser,
		},
		Pool: PoolConfig{
			ExecutionTriggerCount: types.BatchTriggerCount,
		},
		Executor: ExecutorConfig{
			Enabled:  true,
			Interval: 2 * time.Second,
		},
	}
}

// Load reads the file at path on top of Default. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, readable only by the owner since
// it carries private keys.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// GenerateKeys fills the authority and cluster keys if they are empty.
func (c *Config) GenerateKeys() error {
	for _, key := range []*string{&c.Keys.Authority, &c.Keys.Cluster} {
		if *key != "" {
			continue
		}
		k := ethereum.NewSignKeys()
		if err := k.Generate(); err != nil {
			return err
		}
		_, *key = k.HexString()
	}
	return nil
}

// Validate checks the configuration is usable by the node.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is empty")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.Sequencer.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d", c.Sequencer.Workers)
	}
	if c.Sequencer.MaxAttempts == 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.Sequencer.SlippageBps > types.BpsDenominator {
		return fmt.Errorf("slippage %d bps above %d", c.Sequencer.SlippageBps, types.BpsDenominator)
	}
	if _, err := netting.ParseMode(c.Sequencer.NettingMode); err != nil {
		return err
	}
	if c.Pool.ExecutionFeeBps > types.MaxFeeBps {
		return fmt.Errorf("execution fee %d bps above %d", c.Pool.ExecutionFeeBps, types.MaxFeeBps)
	}
	if c.Pool.Treasury != "" && !common.IsHexAddress(c.Pool.Treasury) {
		return fmt.Errorf("invalid treasury address %q", c.Pool.Treasury)
	}
	if c.Keys.Oracle != "" && !common.IsHexAddress(c.Keys.Oracle) {
		return fmt.Errorf("invalid oracle address %q", c.Keys.Oracle)
	}
	if c.Executor.Enabled && c.Executor.Interval <= 0 {
		return fmt.Errorf("invalid executor interval %s", c.Executor.Interval)
	}
	for name, key := range map[string]string{
		"authority": c.Keys.Authority,
		"operator":  c.Keys.Operator,
		"cluster":   c.Keys.Cluster,
	} {
		if key == "" {
			continue
		}
		if _, err := signKeys(key); err != nil {
			return fmt.Errorf("invalid %s key: %w", name, err)
		}
	}
	return nil
}

// SequencerOptions returns the sequencer options described by c.
func (c *Config) SequencerOptions() (sequencer.Options, error) {
	mode, err := netting.ParseMode(c.Sequencer.NettingMode)
	if err != nil {
		return sequencer.Options{}, err
	}
	opts := sequencer.DefaultOptions()
	opts.Workers = c.Sequencer.Workers
	opts.MaxAttempts = c.Sequencer.MaxAttempts
	opts.PollInterval = c.Sequencer.PollInterval
	opts.SlippageBps = c.Sequencer.SlippageBps
	opts.NettingMode = mode
	opts.FaucetCap = c.Sequencer.FaucetCap
	return opts, nil
}

// AuthorityKeys returns the authority key pair.
func (c *Config) AuthorityKeys() (*ethereum.SignKeys, error) {
	if c.Keys.Authority == "" {
		return nil, fmt.Errorf("authority key not configured")
	}
	return signKeys(c.Keys.Authority)
}

// OperatorKeys returns the operator key pair, the authority if none is set.
func (c *Config) OperatorKeys() (*ethereum.SignKeys, error) {
	if c.Keys.Operator == "" {
		return c.AuthorityKeys()
	}
	return signKeys(c.Keys.Operator)
}

// ClusterKeys returns the key pair the cluster signs its outputs with.
func (c *Config) ClusterKeys() (*ethereum.SignKeys, error) {
	if c.Keys.Cluster == "" {
		return nil, fmt.Errorf("cluster key not configured")
	}
	return signKeys(c.Keys.Cluster)
}

func signKeys(hexKey string) (*ethereum.SignKeys, error) {
	k := ethereum.NewSignKeys()
	if err := k.AddHexKey(hexKey); err != nil {
		return nil, err
	}
	return k, nil
}
