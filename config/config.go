// Package config contains the configuration of the index exchange runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/mitchellh/mapstructure"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/viper"

	"github.com/spacemeshos/go-parindex/transport/p2p"
)

const defaultConfigFileName = "./config.toml"

// Transport kinds.
const (
	MemoryTransport = "memory"
	P2PTransport    = "p2p"
)

// Remote index bootstrap modes.
const (
	// RingMode passes every publication around all ranks.
	RingMode = "ring"
	// NeighboursMode exchanges publications with adjacent ranks only.
	NeighboursMode = "neighbours"
)

// Config defines the top level configuration of a run.
type Config struct {
	Preset       string             `mapstructure:"preset"`
	Ranks        int                `mapstructure:"ranks"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Communicator CommunicatorConfig `mapstructure:"communicator"`
	Logging      LoggerConfig       `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Demo         DemoConfig         `mapstructure:"demo"`
}

// TransportConfig selects and configures the transport between ranks.
type TransportConfig struct {
	Kind   string     `mapstructure:"kind"`
	Listen string     `mapstructure:"listen"`
	P2P    p2p.Config `mapstructure:"p2p"`
}

// RemoteConfig configures how remote indices are computed.
type RemoteConfig struct {
	Mode         string `mapstructure:"mode"`
	IncludeSelf  bool   `mapstructure:"include-self"`
	IgnorePublic bool   `mapstructure:"ignore-public"`
	// Sync runs the syncer after the first build to find ranks the bootstrap did not reach.
	Sync bool `mapstructure:"sync"`
}

// CommunicatorConfig configures the communicators.
type CommunicatorConfig struct {
	VerifyOrder bool `mapstructure:"verify-order"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Port       int           `mapstructure:"port"`
	Push       string        `mapstructure:"push"`
	PushPeriod time.Duration `mapstructure:"push-period"`
	// Instance groups pushed metrics. A random id is used if empty.
	Instance string `mapstructure:"instance"`
}

// DemoConfig describes the partitioned line exchanged by the run command.
type DemoConfig struct {
	PerRank int `mapstructure:"per-rank"`
	Overlap int `mapstructure:"overlap"`
	// Block is the number of values stored per entity by the datatype communicator.
	Block int `mapstructure:"block"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Ranks: 4,
		Transport: TransportConfig{
			Kind:   MemoryTransport,
			Listen: "/ip4/127.0.0.1/tcp/0",
			P2P:    p2p.DefaultConfig(),
		},
		Remote: RemoteConfig{
			Mode: RingMode,
		},
		Logging: defaultLoggingConfig(),
		Metrics: MetricsConfig{
			Port:       1010,
			PushPeriod: 10 * time.Second,
		},
		Demo: DemoConfig{
			PerRank: 16,
			Overlap: 2,
			Block:   2,
		},
	}
}

// Validate checks that the configuration describes a runnable setup.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Ranks < 1 {
		errs = append(errs, fmt.Errorf("ranks must be positive, got %d", cfg.Ranks))
	}
	switch cfg.Transport.Kind {
	case MemoryTransport:
	case P2PTransport:
		if _, err := ma.NewMultiaddr(cfg.Transport.Listen); err != nil {
			errs = append(errs, fmt.Errorf("invalid listen address %q: %w", cfg.Transport.Listen, err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", cfg.Transport.Kind))
	}
	switch cfg.Remote.Mode {
	case RingMode, NeighboursMode:
	default:
		errs = append(errs, fmt.Errorf("unknown remote mode %q", cfg.Remote.Mode))
	}
	if cfg.Demo.PerRank < 1 || cfg.Demo.Overlap < 0 || cfg.Demo.Overlap > cfg.Demo.PerRank {
		errs = append(errs, fmt.Errorf("invalid demo line: %d per rank with overlap %d", cfg.Demo.PerRank, cfg.Demo.Overlap))
	}
	if cfg.Metrics.Push != "" && cfg.Metrics.PushPeriod <= 0 {
		errs = append(errs, fmt.Errorf("push period must be positive, got %v", cfg.Metrics.PushPeriod))
	}
	if cfg.Demo.Block < 1 {
		errs = append(errs, fmt.Errorf("block must be positive, got %d", cfg.Demo.Block))
	}
	return errors.Join(errs...)
}

// LoadConfig reads the config file into vip. An empty location selects ./config.toml,
// which may be missing.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		vip.SetConfigFile(defaultConfigFileName)
		if err := vip.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("read config file %s: %w", defaultConfigFileName, err)
		}
		return nil
	}
	vip.SetConfigFile(fileLocation)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", fileLocation, err)
	}
	return nil
}

// Unmarshal decodes the values loaded into vip on top of cfg.
func Unmarshal(vip *viper.Viper, cfg *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		func(dc *mapstructure.DecoderConfig) {
			dc.ErrorUnused = true
		},
	}
	if err := vip.Unmarshal(cfg, opts...); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
