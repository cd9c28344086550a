package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tahta",
		Short:         "Shared whiteboard server and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default $TAHTA_CONFIG_DEFAULT_PATH or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRenderCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	return cmd
}

// load resolves configuration and builds the logger it asks for.
func (o *rootOptions) load() (config.Config, *zerolog.Logger, error) {
	bootstrap := log.NewWithFormat("warn", "console", os.Stderr)
	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger := log.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}
