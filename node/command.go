package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/cmd"
	"github.com/spacemeshos/go-parindex/config"
	"github.com/spacemeshos/go-parindex/config/presets"
	"github.com/spacemeshos/go-parindex/log"
)

// GetCommand returns the command that runs every rank of the configured line and
// prints the per rank reports.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "parindex",
		Short: "exchange a partitioned index set between ranks",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}
			encoder, err := log.Encoder(conf.Logging.Encoder)
			if err != nil {
				return err
			}
			app := New(
				WithConfig(&conf),
				// child loggers can only raise the level, so the root has to start at debug
				WithLog(log.NewWithLevel("parindex", zap.NewAtomicLevelAt(zap.DebugLevel), encoder)),
			)

			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Don't print usage on error from this point forward
			c.SilenceUsage = true
			reports, err := app.Start(ctx)
			if err != nil {
				return err
			}
			for _, r := range reports {
				fmt.Fprintln(c.OutOrStdout(), r)
			}
			return nil
		},
	}

	configPath = cmd.AddFlags(c.PersistentFlags(), &conf)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintf(c.OutOrStdout(), "%s+%s+%s\n", cmd.Version, cmd.Branch, cmd.Commit)
		},
	}
	c.AddCommand(versionCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List config presets",
		Run: func(c *cobra.Command, args []string) {
			for _, name := range presets.Options() {
				fmt.Fprintln(c.OutOrStdout(), name)
			}
		},
	}
	c.AddCommand(presetsCmd)
	return c
}

func configure(c *cobra.Command, configPath string, conf *config.Config) error {
	preset := conf.Preset // might be set via CLI flag
	if err := loadConfig(conf, preset, configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// apply CLI args to config
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	return nil
}

// loadConfig loads config and preset (if provided) into the provided config.
// It first loads the preset and then overrides it with values from the config file.
func loadConfig(cfg *config.Config, preset, path string) error {
	v := viper.New()
	if err := config.LoadConfig(path, v); err != nil {
		return err
	}
	if len(preset) == 0 && v.IsSet("preset") {
		preset = v.GetString("preset")
	}
	if len(preset) > 0 {
		p, err := presets.Get(preset)
		if err != nil {
			return err
		}
		*cfg = p
	}
	return config.Unmarshal(v, cfg)
}
