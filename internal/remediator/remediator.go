// Package remediator repairs non-compliant resources by writing policy
// defaults for their missing tags. Remediation is additive and idempotent:
// existing tag values are never overwritten, and re-applying an
// already-merged tag set is a no-op write, so crash-and-retry never leaves
// a resource in an inconsistent tag state.
package remediator

import (
	"context"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/metrics"
)

// TagWriter issues a single idempotent write of a full tag set through the
// inventory's mutation interface.
type TagWriter interface {
	UpdateTags(ctx context.Context, resourceID string, tags map[string]string) error
}

// Config contains the retry policy for transient write faults.
type Config struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffCap        time.Duration
}

// Executor applies corrective tag writes with bounded retry.
type Executor struct {
	cfg Config
	log *logger.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a remediation executor.
func New(cfg Config, log *logger.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	return &Executor{
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
}

// Remediate attempts to repair one non-compliant result. On success the
// returned result is remediated with its tag snapshot updated to the merged
// set; on failure it is remediation_failed with the original missing list
// preserved so a later run can retry. Results in any other status are
// returned unchanged.
func (e *Executor) Remediate(ctx context.Context, w TagWriter, res scan.ComplianceResult, spec *policy.Spec) scan.ComplianceResult {
	if res.Status != scan.StatusNonCompliant {
		return res
	}

	for _, tag := range res.MissingTags {
		if _, ok := spec.DefaultFor(tag); !ok {
			metrics.RecordRemediationAttempt("no_default")
			res.Status = scan.StatusRemediationFailed
			res.Reason = faults.CodeNoDefault
			e.log.WithFields(map[string]interface{}{
				"resource_id": res.ResourceID,
				"tag":         tag,
			}).Warn("No default value configured for missing tag, skipping remediation")
			return res
		}
	}

	merged := mergeDefaults(res.Tags, res.MissingTags, spec)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := w.UpdateTags(ctx, res.ResourceID, merged)
		if err == nil {
			metrics.RecordRemediationAttempt("success")
			res.Status = scan.StatusRemediated
			res.Tags = merged
			e.log.WithFields(map[string]interface{}{
				"resource_id": res.ResourceID,
				"tags_added":  len(res.MissingTags),
				"attempt":     attempt,
			}).Info("Resource remediated")
			return res
		}

		lastErr = err
		if !faults.IsTransient(err) {
			break
		}
		if attempt < e.cfg.MaxAttempts {
			metrics.RecordRemediationRetry()
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	metrics.RecordRemediationAttempt("failure")
	res.Status = scan.StatusRemediationFailed
	res.Reason = faults.CodeOf(lastErr)
	e.log.WithFields(map[string]interface{}{
		"resource_id": res.ResourceID,
		"reason":      res.Reason,
	}).ErrorWithErr(lastErr, "Remediation failed")
	return res
}

// mergeDefaults unions the current tags with defaults for the missing keys
// only. Existing values always win.
func mergeDefaults(current map[string]string, missing []string, spec *policy.Spec) map[string]string {
	merged := make(map[string]string, len(current)+len(missing))
	for k, v := range current {
		merged[k] = v
	}
	for _, tag := range missing {
		if _, exists := merged[tag]; exists {
			continue
		}
		if v, ok := spec.DefaultFor(tag); ok {
			merged[tag] = v
		}
	}
	return merged
}

// backoff computes the exponential delay before the next attempt.
func (e *Executor) backoff(attempt int) time.Duration {
	d := float64(e.cfg.BackoffBase)
	for i := 1; i < attempt; i++ {
		d *= e.cfg.BackoffMultiplier
	}
	if cap := float64(e.cfg.BackoffCap); cap > 0 && d > cap {
		d = cap
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
