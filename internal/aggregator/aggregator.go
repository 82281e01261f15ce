// Package aggregator reduces a finite sequence of compliance results into
// the run's aggregate report. The reduction is pure and commutative: the
// same result multiset always yields the same report regardless of input
// order, so concurrent account workers need no ordering discipline.
package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
)

// DefaultTopN is the number of top-violator groups reported when the
// caller does not configure one.
const DefaultTopN = 10

// Build reduces the run's results into a ComplianceReport. An empty result
// set yields zero totals and zero rates, never a division fault.
func Build(run *scan.RunResult, spec *policy.Spec, topN int, generatedAt time.Time) *report.Report {
	if topN <= 0 {
		topN = DefaultTopN
	}

	rep := &report.Report{
		RunID:         run.RunID,
		StartedAt:     run.StartedAt,
		GeneratedAt:   generatedAt,
		TypeBreakdown: make(map[string]map[string]int),
	}

	missing := make(map[string]int, len(spec.RequiredTags))
	groupViolations := make(map[string]int)

	for _, res := range run.Results {
		rep.Totals.Resources++
		switch res.Status {
		case scan.StatusCompliant:
			rep.Totals.Compliant++
		case scan.StatusNonCompliant:
			rep.Totals.NonCompliant++
		case scan.StatusRemediated:
			rep.Totals.Remediated++
		case scan.StatusRemediationFailed:
			rep.Totals.RemediationFailed++
		}

		if res.Status != scan.StatusCompliant {
			groupViolations[res.Group]++
		}
		for _, tag := range res.MissingTags {
			missing[tag]++
		}
		if res.CostEstimate != nil {
			rep.Totals.EstimatedCost += *res.CostEstimate
		}

		byStatus, ok := rep.TypeBreakdown[res.ResourceType]
		if !ok {
			byStatus = make(map[string]int)
			rep.TypeBreakdown[res.ResourceType] = byStatus
		}
		byStatus[res.Status]++
	}

	total := rep.Totals.Resources
	if total > 0 {
		rep.Totals.ComplianceRate = percentage(rep.Totals.Compliant, total)
	}

	rep.TagStats = make([]report.TagStat, 0, len(spec.RequiredTags))
	for _, tag := range spec.RequiredTags {
		stat := report.TagStat{Tag: tag, MissingCount: missing[tag]}
		if total > 0 {
			stat.ComplianceRate = percentage(total-missing[tag], total)
		}
		rep.TagStats = append(rep.TagStats, stat)
	}

	rep.TopViolators = topViolators(groupViolations, topN)

	for _, acct := range run.Accounts {
		if acct.Status != scan.AccountCompleted {
			rep.IncompleteAccounts = append(rep.IncompleteAccounts, acct.Account)
		}
	}
	sort.Strings(rep.IncompleteAccounts)

	return rep
}

// topViolators sorts groups by violation count descending, ties broken by
// ascending group identifier, and keeps the first n.
func topViolators(counts map[string]int, n int) []report.GroupViolations {
	out := make([]report.GroupViolations, 0, len(counts))
	for group, count := range counts {
		out = append(out, report.GroupViolations{Group: group, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Group < out[j].Group
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// percentage rounds to two decimal places so repeated aggregation of the
// same results serializes identically.
func percentage(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*10000) / 100
}
