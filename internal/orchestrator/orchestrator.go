// Package orchestrator drives a scan run: it fans account enumeration out
// to a bounded worker pool, evaluates every resource against the policy,
// optionally hands non-compliant results to the remediation executor, and
// collects everything into the run's append-only result collection.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/evaluator"
	"github.com/pratik-mahalle/tagaudit/internal/inventory"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/metrics"
	"github.com/pratik-mahalle/tagaudit/internal/remediator"
)

// Config contains orchestration settings for one run.
type Config struct {
	// Concurrency bounds the number of accounts scanned in parallel.
	Concurrency int
	// ProgressEvery logs a progress line after this many resources per
	// account. Zero disables progress logging.
	ProgressEvery int
	// RateLimit caps inventory API calls per second across all workers.
	// Zero means unlimited.
	RateLimit float64
	RateBurst int
	// Remediate enables corrective tag writes for non-compliant resources.
	Remediate bool
}

// Orchestrator coordinates one scan run over a single inventory source.
type Orchestrator struct {
	src     inventory.Source
	spec    *policy.Spec
	exec    *remediator.Executor
	cost    inventory.CostEstimator
	cfg     Config
	log     *logger.Logger
	limiter *rate.Limiter
}

// New creates an orchestrator. exec may be nil when remediation is
// disabled; cost may be nil when estimates are not wanted.
func New(src inventory.Source, spec *policy.Spec, exec *remediator.Executor, cost inventory.CostEstimator, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Orchestrator{
		src:     src,
		spec:    spec,
		exec:    exec,
		cost:    cost,
		cfg:     cfg,
		log:     log,
		limiter: limiter,
	}
}

// Run executes a full scan. It returns an error only when no accounts are
// reachable at all; account-level enumeration faults are recorded on the
// run summary instead, and the results gathered before each fault are kept.
func (o *Orchestrator) Run(ctx context.Context) (*scan.RunResult, error) {
	startedAt := time.Now().UTC()

	accounts, err := o.src.Accounts(ctx)
	if err != nil {
		return nil, faults.Enumeration("*", err)
	}

	run := &scan.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: startedAt,
	}

	o.log.WithFields(map[string]interface{}{
		"run_id":   run.RunID,
		"provider": o.src.Provider(),
		"accounts": len(accounts),
	}).Info("Starting compliance scan")

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.cfg.Concurrency)

	for _, account := range accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(account string) {
			defer wg.Done()
			defer func() { <-sem }()

			results, summary := o.scanAccount(ctx, account, startedAt)
			if o.cost != nil && len(results) > 0 {
				o.enrichCosts(ctx, account, results)
			}

			// An account's results are committed in one piece once its
			// enumeration is over, so no partial per-resource state is
			// visible to other workers.
			mu.Lock()
			run.Results = append(run.Results, results...)
			run.Accounts = append(run.Accounts, summary)
			mu.Unlock()

			metrics.RecordAccount(o.src.Provider(), summary.Status)
		}(account)
	}
	wg.Wait()

	status := scan.AccountCompleted
	if !run.Completed() {
		status = scan.AccountIncomplete
	}
	metrics.RecordScan(o.src.Provider(), status, time.Since(startedAt))

	o.log.WithFields(map[string]interface{}{
		"run_id":    run.RunID,
		"resources": len(run.Results),
		"duration":  time.Since(startedAt).String(),
	}).Info("Compliance scan finished")

	return run, nil
}

// scanAccount enumerates one account sequentially. On an enumeration fault
// or cancellation it returns whatever succeeded so far together with an
// incomplete marker.
func (o *Orchestrator) scanAccount(ctx context.Context, account string, scannedAt time.Time) ([]scan.ComplianceResult, scan.AccountScan) {
	log := o.log.With("account", account)
	log.Debug("Scanning account")

	pager := o.src.Resources(account)
	writer := &accountWriter{src: o.src, account: account, limiter: o.limiter}

	var results []scan.ComplianceResult
	for {
		if err := o.waitForSlot(ctx); err != nil {
			return results, o.incomplete(account, len(results), err)
		}

		page, done, err := pager.Next(ctx)
		if err != nil {
			log.ErrorWithErr(err, "Account enumeration failed mid-scan")
			return results, o.incomplete(account, len(results), err)
		}

		for _, rec := range page {
			// Cancellation is checked between resources only, so an
			// in-flight page fetch or tag write always completes or
			// fails cleanly.
			if err := ctx.Err(); err != nil {
				return results, o.incomplete(account, len(results), err)
			}

			res := evaluator.Evaluate(rec, o.spec, scannedAt)
			if o.cfg.Remediate && o.exec != nil && res.Status == scan.StatusNonCompliant {
				res = o.exec.Remediate(ctx, writer, res, o.spec)
			}
			results = append(results, res)
			metrics.RecordResource(o.src.Provider(), res.Status)

			if o.cfg.ProgressEvery > 0 && len(results)%o.cfg.ProgressEvery == 0 {
				log.WithFields(map[string]interface{}{
					"scanned": len(results),
				}).Info("Scan progress")
			}
		}

		if done {
			break
		}
	}

	return results, scan.AccountScan{
		Account:   account,
		Status:    scan.AccountCompleted,
		Resources: len(results),
	}
}

func (o *Orchestrator) incomplete(account string, scanned int, err error) scan.AccountScan {
	return scan.AccountScan{
		Account:   account,
		Status:    scan.AccountIncomplete,
		Resources: scanned,
		Error:     err.Error(),
	}
}

// waitForSlot blocks until the shared inventory rate limiter admits the
// next API call.
func (o *Orchestrator) waitForSlot(ctx context.Context) error {
	if o.limiter == nil {
		return ctx.Err()
	}
	return o.limiter.Wait(ctx)
}

// enrichCosts annotates an account's results with a coarse per-resource
// estimate: the account's 30-day spend for a resource type divided evenly
// across the resources of that type. Estimation failures only log.
func (o *Orchestrator) enrichCosts(ctx context.Context, account string, results []scan.ComplianceResult) {
	costs, err := o.cost.AccountCosts(ctx, account)
	if err != nil {
		o.log.WithFields(map[string]interface{}{
			"account": account,
		}).WithError(err).Warn("Cost estimation unavailable for account")
		return
	}

	countByType := make(map[string]int)
	for _, res := range results {
		countByType[res.ResourceType]++
	}
	for i := range results {
		total, ok := costs[results[i].ResourceType]
		if !ok {
			continue
		}
		share := total / float64(countByType[results[i].ResourceType])
		results[i].CostEstimate = &share
	}
}

// accountWriter binds the source's mutation interface to one account and
// routes writes through the shared rate limiter.
type accountWriter struct {
	src     inventory.Source
	account string
	limiter *rate.Limiter
}

func (w *accountWriter) UpdateTags(ctx context.Context, resourceID string, tags map[string]string) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return w.src.UpdateTags(ctx, w.account, resourceID, tags)
}
