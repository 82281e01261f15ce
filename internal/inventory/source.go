// Package inventory defines the boundary to the cloud inventory the engine
// scans, plus the concrete Azure, AWS and GCP implementations. One source
// serves one run; the engine never abstracts across providers within a run.
package inventory

import (
	"context"

	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
)

// Pager is a stateful cursor over one account's resources. Pagination is
// strictly sequential: a Pager must never be shared across goroutines, and
// it is not restartable mid-page after a fault.
type Pager interface {
	// Next returns the next page of records. done is true once the cursor
	// is exhausted; a non-nil error terminates enumeration for the account.
	Next(ctx context.Context) (records []scan.ResourceRecord, done bool, err error)
}

// Source supplies the paginated resource inventory and its mutation
// interface. Implementations classify their API errors through the faults
// package so the remediator can drive its retry loop.
type Source interface {
	// Provider names the inventory backing this source (azure, aws, gcp).
	Provider() string

	// Accounts lists the account identifiers available for scanning.
	Accounts(ctx context.Context) ([]string, error)

	// Resources opens a fresh pagination cursor for one account.
	Resources(account string) Pager

	// UpdateTags issues a single idempotent write of the merged tag set.
	UpdateTags(ctx context.Context, account, resourceID string, tags map[string]string) error
}

// CostEstimator optionally supplies per-resource-type spend for an account,
// used to annotate results with a coarse cost estimate. Estimation failures
// are never fatal to a scan.
type CostEstimator interface {
	// AccountCosts returns 30-day spend keyed by resource type string.
	AccountCosts(ctx context.Context, account string) (map[string]float64, error)
}
