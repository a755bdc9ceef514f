package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/system"
	"github.com/nslnv/leaddesk/pkg/version"
)

func NewServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the admin panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := system.NewLogger(opts.Debug, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			log.Sugar().Infow("Starting leaddesk",
				"version", version.Version,
				"environment", cfg.Environment,
				"listen", cfg.Server.ListenAddress,
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server, err := buildServer(ctx, cfg, log, opts.Debug)
			if err != nil {
				log.Sugar().Errorw("Startup failed", "error", err)
				return err
			}
			return server.Run(ctx)
		},
	}
}
