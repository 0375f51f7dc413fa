package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/spacemeshos/go-parindex/config"
	"github.com/spacemeshos/go-parindex/config/presets"
)

// AddFlags adds cobra flags to the provided flagset and binds them to conf.
// It returns a pointer to the config file path.
func AddFlags(flagSet *pflag.FlagSet, conf *config.Config) (configPath *string) {
	flagSet.StringVarP(&conf.Preset, "preset", "p", "",
		fmt.Sprintf("preset overwrites default values of the config. options %+s", presets.Options()))
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")

	/** ======================== Run Flags ========================== **/
	flagSet.IntVarP(&conf.Ranks, "ranks", "n", conf.Ranks, "number of ranks")
	flagSet.StringVar(&conf.Logging.Encoder, "log-encoder",
		conf.Logging.Encoder, "log as JSON instead of plain text")

	/** ======================== Transport Flags ========================== **/
	flagSet.StringVar(&conf.Transport.Kind, "transport", conf.Transport.Kind,
		fmt.Sprintf("transport between ranks (%s or %s)", config.MemoryTransport, config.P2PTransport))
	flagSet.StringVar(&conf.Transport.Listen, "listen", conf.Transport.Listen,
		"multiaddr every libp2p host listens on")
	flagSet.DurationVar(&conf.Transport.P2P.Timeout, "p2p-timeout", conf.Transport.P2P.Timeout,
		"timeout for delivering a single message")
	flagSet.IntVar(&conf.Transport.P2P.MaxMessageSize, "p2p-max-message-size", conf.Transport.P2P.MaxMessageSize,
		"max size of a single message in bytes")
	flagSet.BoolVar(&conf.Transport.P2P.Compression, "p2p-compression", conf.Transport.P2P.Compression,
		"compress large messages with zstd")
	flagSet.IntVar(&conf.Transport.P2P.CompressThreshold, "p2p-compress-threshold", conf.Transport.P2P.CompressThreshold,
		"messages from this size on are compressed")

	/** ======================== Remote Indices Flags ========================== **/
	flagSet.StringVar(&conf.Remote.Mode, "remote-mode", conf.Remote.Mode,
		fmt.Sprintf("how remote indices are bootstrapped (%s or %s)", config.RingMode, config.NeighboursMode))
	flagSet.BoolVar(&conf.Remote.IncludeSelf, "include-self", conf.Remote.IncludeSelf,
		"match own entities with different attributes")
	flagSet.BoolVar(&conf.Remote.IgnorePublic, "ignore-public", conf.Remote.IgnorePublic,
		"publish all entities regardless of the public flag")
	flagSet.BoolVar(&conf.Remote.Sync, "sync", conf.Remote.Sync,
		"discover missing neighbours after bootstrap")

	/** ======================== Communicator Flags ========================== **/
	flagSet.BoolVar(&conf.Communicator.VerifyOrder, "verify-order", conf.Communicator.VerifyOrder,
		"check that neighbours agree on the slot order before the first exchange")

	/** ======================== Demo Flags ========================== **/
	flagSet.IntVar(&conf.Demo.PerRank, "per-rank", conf.Demo.PerRank, "entities owned by every rank")
	flagSet.IntVar(&conf.Demo.Overlap, "overlap", conf.Demo.Overlap, "entities copied from each adjacent rank")
	flagSet.IntVar(&conf.Demo.Block, "block", conf.Demo.Block, "values per entity for the datatype exchange")

	/** ======================== Metrics Flags ========================== **/
	flagSet.BoolVar(&conf.Metrics.Enabled, "metrics", conf.Metrics.Enabled, "serve metrics")
	flagSet.IntVar(&conf.Metrics.Port, "metrics-port", conf.Metrics.Port, "metric server port")
	flagSet.StringVar(&conf.Metrics.Push, "metrics-push", conf.Metrics.Push, "push metrics to url")
	flagSet.DurationVar(&conf.Metrics.PushPeriod, "metrics-push-period", conf.Metrics.PushPeriod, "push period")
	flagSet.StringVar(&conf.Metrics.Instance, "metrics-instance", conf.Metrics.Instance,
		"instance label of pushed metrics, random if empty")

	return configPath
}
