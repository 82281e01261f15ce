package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/config"
	"github.com/pratik-mahalle/tagaudit/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past scan runs",
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

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No scan runs recorded.")
				return nil
			}

			return printOutput(runs, func() {
				t := NewTable("RUN", "PROVIDER", "STARTED", "RESOURCES", "NON-COMPLIANT", "RATE", "INCOMPLETE")
				for _, r := range runs {
					t.AddRow(
						truncate(r.RunID, 12),
						r.Provider,
						r.StartedAt.Format(time.RFC3339),
						fmt.Sprintf("%d", r.Resources),
						fmt.Sprintf("%d", r.NonCompliant),
						fmt.Sprintf("%.2f%%", r.ComplianceRate),
						fmt.Sprintf("%d", r.IncompleteAccounts),
					)
				}
				t.Print()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
