// Package config provides the viper-backed loader for node configuration
// files and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"neo-core/core"
	"neo-core/pkg/utils"
)

// Config mirrors the YAML config file layout and the NEO_* environment
// overrides.
type Config struct {
	Network struct {
		Magic          uint32   `mapstructure:"magic" json:"magic"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		MsPerBlock       uint64   `mapstructure:"ms_per_block" json:"ms_per_block"`
		ValidatorsCount  int      `mapstructure:"validators_count" json:"validators_count"`
		StandbyCommittee []string `mapstructure:"standby_committee" json:"standby_committee"` // compressed keys, hex
		ValidatorIndex   int      `mapstructure:"validator_index" json:"validator_index"`     // -1: not a validator
		PrivateKey       string   `mapstructure:"private_key" json:"-"`                       // hex scalar, validators only
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		Backend string `mapstructure:"backend" json:"backend"` // "memory" or "leveldb"
		Path    string `mapstructure:"path" json:"path"`
	} `mapstructure:"storage" json:"storage"`

	Mempool struct {
		Capacity int `mapstructure:"capacity" json:"capacity"`
	} `mapstructure:"mempool" json:"mempool"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Load reads the named config file (default "config") from the usual
// search paths, after merging any .env file into the process environment.
func Load(name string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is not an error

	if name == "" {
		name = "config"
	}
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("cmd/config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NEO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("consensus.ms_per_block", 15000)
	v.SetDefault("consensus.validators_count", 7)
	v.SetDefault("consensus.validator_index", -1)
	v.SetDefault("storage.backend", "leveldb")
	v.SetDefault("storage.path", "chain")
	v.SetDefault("mempool.capacity", 50000)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads the config named by NEO_CONFIG, falling back to the
// default search.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("NEO_CONFIG", ""))
}

// Protocol converts the file form into the core protocol parameters,
// parsing the committee's compressed public keys.
func (c *Config) Protocol() (*core.ProtocolConfig, error) {
	pc := core.DefaultProtocolConfig()
	if c.Network.Magic != 0 {
		pc.Network = c.Network.Magic
	}
	if c.Consensus.MsPerBlock != 0 {
		pc.MsPerBlock = c.Consensus.MsPerBlock
	}
	if c.Consensus.ValidatorsCount != 0 {
		pc.ValidatorsCount = c.Consensus.ValidatorsCount
	}
	if c.Mempool.Capacity != 0 {
		pc.MempoolCapacity = c.Mempool.Capacity
	}
	for i, hexKey := range c.Consensus.StandbyCommittee {
		p, err := core.ECPointFromHex(hexKey)
		if err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("standby committee key %d", i))
		}
		pc.StandbyCommittee = append(pc.StandbyCommittee, p)
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return pc, nil
}

// OpenStore builds the configured storage backend.
func (c *Config) OpenStore() (core.Store, error) {
	switch c.Storage.Backend {
	case "", "memory":
		return core.NewMemoryStore(), nil
	case "leveldb":
		return core.OpenLevelDBStore(c.Storage.Path)
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
}
