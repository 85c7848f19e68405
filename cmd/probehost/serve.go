package main

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the /ws event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return usageExit("invalid --addr: " + err.Error())
				}
				cfg.Server.Host, cfg.Server.Port = host, port
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(cfg, logger, server.Options{})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port (default: HOST:PORT)")
	return cmd
}
