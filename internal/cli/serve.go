package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/config"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/server"
	"github.com/pratik-mahalle/tagaudit/internal/store"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API",
		Long:  `Serves health, Prometheus metrics, and recorded compliance reports over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			db, err := store.Open(cfg.Output.StorePath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(db, log).Start(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	return cmd
}
