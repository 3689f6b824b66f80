// Package config loads and validates the rollup node's configuration: the
// backing-store location and tuning, the JMT's hash algorithm choice, the
// gas price vector, the sequencer bond, and the default blob-selection
// kernel. Values are loaded from YAML with environment-variable overrides,
// the same two-stage approach the teacher used for its node config (file
// defaults, then flags/env layered on top).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/rollkernel/rollkernel/hashfn"
)

// StorageConfig tunes the L0 backing store.
type StorageConfig struct {
	Dir             string `yaml:"dir"`
	CacheSizeMB     int    `yaml:"cache_size_mb"`
	MaxOpenFiles    int    `yaml:"max_open_files"`
	BytesPerSync    int    `yaml:"bytes_per_sync"`
	DisableWAL      bool   `yaml:"disable_wal"`
}

// JMTConfig configures the L1 authenticated tree.
type JMTConfig struct {
	HashAlgorithm    string `yaml:"hash_algorithm"`
	StorePreimages   bool   `yaml:"store_preimages"`
	PruneTombstones  bool   `yaml:"prune_tombstones"`
}

// GasConfig fixes the dimensionality and default price vector for gas
// accounting. A zero-valued dimension degrades that dimension to free,
// letting the core run as plain scalar gas.
type GasConfig struct {
	PriceVector []uint64 `yaml:"price_vector"`
}

// Dimensions reports how many gas dimensions this configuration carries.
func (g GasConfig) Dimensions() int { return len(g.PriceVector) }

// SequencerConfig sets the bond a DA-layer address must post to be admitted
// by the sequencer-registry admission hook.
type SequencerConfig struct {
	BondAmount uint64 `yaml:"bond_amount"`
}

// KernelConfig selects the pluggable blob-selection policy run at slot
// start. "fifo" (first-come, first-served, no reordering) is the default
// and the only policy the core ships with; others are registered by name at
// runtime by the embedding application.
type KernelConfig struct {
	Policy string `yaml:"policy"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// RollupConfig is the top-level configuration for a rollup node.
type RollupConfig struct {
	DataDir   string          `yaml:"datadir"`
	LogLevel  string          `yaml:"log_level"`
	Storage   StorageConfig   `yaml:"storage"`
	JMT       JMTConfig       `yaml:"jmt"`
	Gas       GasConfig       `yaml:"gas"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Kernel    KernelConfig    `yaml:"kernel"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns a RollupConfig with sensible out-of-the-box values: a
// local datadir, Keccak-256 JMT hashing, a two-dimensional gas vector
// (native cycles, proof cycles), and metrics disabled.
func Default() RollupConfig {
	dataDir := "./.rollkernel"
	return RollupConfig{
		DataDir:  dataDir,
		LogLevel: "info",
		Storage: StorageConfig{
			Dir:          dataDir + "/chaindata",
			CacheSizeMB:  256,
			MaxOpenFiles: 1024,
			BytesPerSync: 1 << 20,
		},
		JMT: JMTConfig{
			HashAlgorithm:   "keccak256",
			StorePreimages:  true,
			PruneTombstones: false,
		},
		Gas: GasConfig{
			PriceVector: []uint64{1, 0},
		},
		Sequencer: SequencerConfig{
			BondAmount: 1_000_000,
		},
		Kernel: KernelConfig{
			Policy: "fifo",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9100",
		},
	}
}

// Load reads a RollupConfig from the YAML file at path, layering it over
// Default(), then applies environment-variable overrides. An empty path
// returns the defaults with only env overrides applied.
func Load(path string) (RollupConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envOverrides lists the ROLLKERNEL_* environment variables recognized by
// applyEnvOverrides, keyed by the config field they set.
var envOverrides = map[string]func(*RollupConfig, string) error{
	"ROLLKERNEL_DATADIR": func(c *RollupConfig, v string) error {
		c.DataDir = v
		return nil
	},
	"ROLLKERNEL_LOG_LEVEL": func(c *RollupConfig, v string) error {
		c.LogLevel = v
		return nil
	},
	"ROLLKERNEL_STORAGE_DIR": func(c *RollupConfig, v string) error {
		c.Storage.Dir = v
		return nil
	},
	"ROLLKERNEL_JMT_HASH_ALGORITHM": func(c *RollupConfig, v string) error {
		c.JMT.HashAlgorithm = v
		return nil
	},
	"ROLLKERNEL_SEQUENCER_BOND_AMOUNT": func(c *RollupConfig, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ROLLKERNEL_SEQUENCER_BOND_AMOUNT: %w", err)
		}
		c.Sequencer.BondAmount = n
		return nil
	},
	"ROLLKERNEL_METRICS_ENABLED": func(c *RollupConfig, v string) error {
		c.Metrics.Enabled = strings.EqualFold(v, "true") || v == "1"
		return nil
	},
	"ROLLKERNEL_METRICS_LISTEN_ADDR": func(c *RollupConfig, v string) error {
		c.Metrics.ListenAddr = v
		return nil
	},
}

func applyEnvOverrides(cfg *RollupConfig) error {
	for name, apply := range envOverrides {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := apply(cfg, v); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects a configuration that would misbehave at runtime: an
// unknown hash algorithm, an empty storage directory, or a kernel policy
// name left blank.
func (c *RollupConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: datadir must not be empty")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("config: storage.dir must not be empty")
	}
	if _, err := hashfn.ByName(c.JMT.HashAlgorithm); err != nil {
		return fmt.Errorf("config: jmt.hash_algorithm: %w", err)
	}
	if c.Kernel.Policy == "" {
		return fmt.Errorf("config: kernel.policy must not be empty")
	}
	return nil
}
