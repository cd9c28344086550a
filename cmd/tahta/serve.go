package main

import (
	"github.com/spf13/cobra"

	"github.com/okultahta/tahta-server/internal/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr string
		mdns bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("mdns") {
				cfg.Discovery.MDNS = mdns
			}

			application, err := app.New(cmd.Context(), &cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(cmd.Context()); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().BoolVar(&mdns, "mdns", false, "advertise the server on the local network")
	return cmd
}
