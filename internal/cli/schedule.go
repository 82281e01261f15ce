package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/config"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/worker"
)

func newScheduleCmd() *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring compliance scans",
		Long:  `Runs scans on a cron schedule until interrupted. The first scan fires immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := worker.NewScheduler(cronExpr, func(ctx context.Context) error {
				_, err := executeScan(ctx, cfg)
				return err
			}, log)

			return sched.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "0 2 * * *", "cron expression (five fields)")
	return cmd
}
