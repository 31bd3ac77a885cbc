package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/illmade-knight/rtview-feed/pkg/config"
)

// app carries what PersistentPreRunE prepares for the subcommands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the rtviewfeed command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "rtviewfeed",
		Short: "Feeds PubNub demo streams into RTView DataServer caches.",
		Long: `rtviewfeed subscribes to the PubNub market, weather and sensor demo
channels, normalizes each message and posts it to an RTView DataServer cache.

It can also read the same channels from an MQTT broker or from Google Cloud
Pub/Sub subscriptions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cfg)
			log.Logger = a.logger
			a.logger.Debug().Str("source", cfg.Source.Kind).Str("target_url", cfg.RTView.TargetURL).Msg("Configuration loaded")
			return nil
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd(a), newDeclareCmd(a), newSchemaCmd(a))
	return rootCmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.LogConsole {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Str("provided_level", cfg.LogLevel).Msg("Invalid log level provided. Defaulting to 'info'.")
	}
	return logger
}

// Execute runs the root command. It is called by rtviewfeed/main.go.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
