package cli

import (
	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/config"
	"github.com/pratik-mahalle/tagaudit/internal/store"
)

func newReportCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a recorded compliance report",
		Long:  `Shows the latest recorded report, or a specific run with --run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Output.StorePath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if runID != "" {
				rep, err := db.GetReport(ctx, runID)
				if err != nil {
					return err
				}
				return printReport(rep)
			}
			rep, err := db.LatestReport(ctx)
			if err != nil {
				return err
			}
			return printReport(rep)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run id to show (default latest)")
	return cmd
}
