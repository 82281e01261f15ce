package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/aggregator"
	"github.com/pratik-mahalle/tagaudit/internal/config"
	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/inventory"
	"github.com/pratik-mahalle/tagaudit/internal/orchestrator"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/metrics"
	"github.com/pratik-mahalle/tagaudit/internal/remediator"
	"github.com/pratik-mahalle/tagaudit/internal/sink"
	"github.com/pratik-mahalle/tagaudit/internal/store"
)

type scanFlags struct {
	policyPath    string
	provider      string
	remediate     bool
	estimateCosts bool
	outDir        string
	concurrency   int
}

func newScanCmd() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a tag-compliance scan",
		Long: `Enumerates resources across all configured accounts, evaluates each
against the tagging policy, optionally remediates violations, and writes
the report artifacts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := executeScan(ctx, cfg)
			if err != nil {
				return err
			}
			return printReport(rep)
		},
	}

	cmd.Flags().StringVar(&flags.policyPath, "policy", "", "path to the tagging policy YAML")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "cloud provider: azure, aws, gcp")
	cmd.Flags().BoolVar(&flags.remediate, "remediate", false, "write default tags to non-compliant resources")
	cmd.Flags().BoolVar(&flags.estimateCosts, "estimate-costs", false, "annotate results with 30-day cost estimates")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "directory for report artifacts")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "accounts scanned in parallel")

	return cmd
}

// loadConfig loads the environment configuration and overlays any flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command, flags *scanFlags) (*config.Config, error) {
	if flags.provider != "" {
		os.Setenv("TAGAUDIT_PROVIDER", flags.provider)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.policyPath != "" {
		cfg.PolicyPath = flags.policyPath
	}
	if flags.outDir != "" {
		cfg.Output.Dir = flags.outDir
	}
	if flags.concurrency > 0 {
		cfg.Scan.Concurrency = flags.concurrency
	}
	if cmd.Flags().Changed("remediate") {
		cfg.Scan.Remediate = flags.remediate
	}
	if cmd.Flags().Changed("estimate-costs") {
		cfg.Scan.EstimateCosts = flags.estimateCosts
	}
	return cfg, nil
}

// executeScan runs the full pipeline: enumerate, evaluate, remediate,
// aggregate, persist. Shared by the scan and schedule commands.
func executeScan(ctx context.Context, cfg *config.Config) (*report.Report, error) {
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	spec, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}

	src, err := buildSource(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initializing %s source: %w", cfg.Provider, err)
	}

	var exec *remediator.Executor
	if cfg.Scan.Remediate {
		exec = remediator.New(remediator.Config{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			BackoffBase:       cfg.Retry.BackoffBase,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			BackoffCap:        cfg.Retry.BackoffCap,
		}, log)
	}

	var cost inventory.CostEstimator
	if cfg.Scan.EstimateCosts {
		cost = buildCostEstimator(cfg, src)
		if cost == nil {
			log.Warn("Cost estimation not supported for this provider")
		}
	}

	orch := orchestrator.New(src, spec, exec, cost, orchestrator.Config{
		Concurrency:   cfg.Scan.Concurrency,
		ProgressEvery: cfg.Scan.ProgressEvery,
		RateLimit:     cfg.Scan.RateLimit,
		RateBurst:     cfg.Scan.RateBurst,
		Remediate:     cfg.Scan.Remediate,
	}, log)

	run, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}

	rep := aggregator.Build(run, spec, cfg.Scan.TopViolators, time.Now().UTC())
	metrics.SetComplianceRate(cfg.Provider, rep.Totals.ComplianceRate)
	metrics.SetNonCompliantCount(cfg.Provider, float64(rep.Totals.NonCompliant))

	fileSink := sink.NewFileSink(cfg.Output.Dir, log)
	if err := fileSink.Write(ctx, rep, run.Results); err != nil {
		return nil, err
	}

	// History is best-effort: a broken local database must not fail a run
	// whose artifacts were already written.
	if db, err := store.Open(cfg.Output.StorePath); err != nil {
		log.WithError(err).Warn("Run history unavailable")
	} else {
		defer db.Close()
		if err := db.SaveRun(ctx, cfg.Provider, rep); err != nil {
			log.WithError(err).Warn("Failed to record run in history")
		}
	}

	return rep, nil
}

func buildSource(ctx context.Context, cfg *config.Config, log *logger.Logger) (inventory.Source, error) {
	switch cfg.Provider {
	case "azure":
		return inventory.NewAzureSource(inventory.AzureCredentials{
			TenantID:      cfg.Azure.TenantID,
			ClientID:      cfg.Azure.ClientID,
			ClientSecret:  cfg.Azure.ClientSecret,
			Subscriptions: cfg.Azure.Subscriptions,
		}, log)
	case "aws":
		return inventory.NewAWSSource(ctx, inventory.AWSCredentials{
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Regions:         cfg.AWS.Regions,
		}, log)
	case "gcp":
		return inventory.NewGCPSource(inventory.GCPCredentials{
			Projects:           cfg.GCP.Projects,
			ServiceAccountJSON: cfg.GCP.ServiceAccountJSON,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func buildCostEstimator(cfg *config.Config, src inventory.Source) inventory.CostEstimator {
	switch s := src.(type) {
	case *inventory.AWSSource:
		return inventory.NewAWSCostEstimator(s)
	case *inventory.AzureSource:
		return inventory.NewAzureCostEstimator(s)
	default:
		return nil
	}
}

func printReport(rep *report.Report) error {
	return printOutput(rep, func() {
		fmt.Printf("Run %s (%s)\n\n", rep.RunID, rep.StartedAt.Format(time.RFC3339))

		summary := NewTable("RESOURCES", "COMPLIANT", "NON-COMPLIANT", "REMEDIATED", "FAILED", "RATE")
		summary.AddRow(
			fmt.Sprintf("%d", rep.Totals.Resources),
			fmt.Sprintf("%d", rep.Totals.Compliant),
			fmt.Sprintf("%d", rep.Totals.NonCompliant),
			fmt.Sprintf("%d", rep.Totals.Remediated),
			fmt.Sprintf("%d", rep.Totals.RemediationFailed),
			fmt.Sprintf("%.2f%%", rep.Totals.ComplianceRate),
		)
		summary.Print()

		if len(rep.TagStats) > 0 {
			fmt.Println("\nPer-tag compliance:")
			tags := NewTable("TAG", "MISSING", "RATE")
			for _, ts := range rep.TagStats {
				tags.AddRow(ts.Tag, fmt.Sprintf("%d", ts.MissingCount), fmt.Sprintf("%.2f%%", ts.ComplianceRate))
			}
			tags.Print()
		}

		if len(rep.TopViolators) > 0 {
			fmt.Println("\nTop violating groups:")
			groups := NewTable("GROUP", "VIOLATIONS")
			for _, gv := range rep.TopViolators {
				groups.AddRow(truncate(gv.Group, 48), fmt.Sprintf("%d", gv.Count))
			}
			groups.Print()
		}

		if len(rep.IncompleteAccounts) > 0 {
			fmt.Printf("\nWarning: %d account(s) were not fully enumerated: %v\n",
				len(rep.IncompleteAccounts), rep.IncompleteAccounts)
		}
	})
}
