package report

import "time"

// Report is the aggregate compliance artifact for one scan run. It is
// produced once by the aggregator and never mutated afterwards; building it
// twice from the same result set yields an identical document apart from
// GeneratedAt.
type Report struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	GeneratedAt time.Time `json:"generated_at"`

	Totals Totals `json:"totals"`

	// TagStats follows the policy's declared tag order.
	TagStats []TagStat `json:"tag_stats"`

	// TypeBreakdown maps resource type to per-status counts.
	TypeBreakdown map[string]map[string]int `json:"type_breakdown"`

	// TopViolators lists the owning groups with the most non-compliant
	// resources, descending, ties broken by ascending group identifier.
	TopViolators []GroupViolations `json:"top_violators"`

	// IncompleteAccounts lists accounts whose enumeration failed mid-scan.
	IncompleteAccounts []string `json:"incomplete_accounts,omitempty"`
}

// Totals holds run-level counters.
type Totals struct {
	Resources         int `json:"resources"`
	Compliant         int `json:"compliant"`
	NonCompliant      int `json:"non_compliant"`
	Remediated        int `json:"remediated"`
	RemediationFailed int `json:"remediation_failed"`
	// ComplianceRate is the percentage of resources satisfying the full
	// policy at scan time. Zero when no resources were scanned.
	ComplianceRate float64 `json:"compliance_rate"`
	// EstimatedCost sums the per-resource cost estimates that were
	// available, in the inventory's billing currency.
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

// TagStat is the per-tag miss statistic.
type TagStat struct {
	Tag          string `json:"tag"`
	MissingCount int    `json:"missing_count"`
	// ComplianceRate is (total - missing) / total as a percentage.
	ComplianceRate float64 `json:"compliance_rate"`
}

// GroupViolations counts non-compliant resources for one owning group.
type GroupViolations struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}
