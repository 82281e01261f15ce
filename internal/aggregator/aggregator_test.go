package aggregator

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
)

var testSpec = &policy.Spec{
	RequiredTags: []string{"Environment", "Owner", "CostCenter"},
}

func result(group, resType, status string, missing ...string) scan.ComplianceResult {
	if missing == nil {
		missing = []string{}
	}
	return scan.ComplianceResult{
		ResourceID:   group + "/r",
		ResourceType: resType,
		Group:        group,
		Status:       status,
		MissingTags:  missing,
	}
}

func TestBuildEmptyRun(t *testing.T) {
	run := &scan.RunResult{RunID: "run-1", StartedAt: time.Now().UTC()}
	rep := Build(run, testSpec, 0, time.Now().UTC())

	if rep.Totals.Resources != 0 {
		t.Errorf("Resources = %d, want 0", rep.Totals.Resources)
	}
	if rep.Totals.ComplianceRate != 0 {
		t.Errorf("ComplianceRate = %v, want 0 for empty input", rep.Totals.ComplianceRate)
	}
	if len(rep.TagStats) != 3 {
		t.Fatalf("TagStats length = %d, want 3", len(rep.TagStats))
	}
	for _, ts := range rep.TagStats {
		if ts.ComplianceRate != 0 || ts.MissingCount != 0 {
			t.Errorf("tag %s: rate %v missing %d, want zeros", ts.Tag, ts.ComplianceRate, ts.MissingCount)
		}
	}
	if len(rep.TopViolators) != 0 {
		t.Errorf("TopViolators = %v, want empty", rep.TopViolators)
	}
}

func TestBuildRates(t *testing.T) {
	run := &scan.RunResult{RunID: "run-1"}
	for i := 0; i < 60; i++ {
		run.Results = append(run.Results, result("g1", "vm", scan.StatusCompliant))
	}
	for i := 0; i < 40; i++ {
		run.Results = append(run.Results, result("g2", "vm", scan.StatusNonCompliant, "CostCenter"))
	}

	rep := Build(run, testSpec, 0, time.Now().UTC())

	if rep.Totals.ComplianceRate != 60.0 {
		t.Errorf("ComplianceRate = %v, want 60.0", rep.Totals.ComplianceRate)
	}
	for _, ts := range rep.TagStats {
		switch ts.Tag {
		case "CostCenter":
			if ts.MissingCount != 40 || ts.ComplianceRate != 60.0 {
				t.Errorf("CostCenter: missing %d rate %v, want 40 and 60.0", ts.MissingCount, ts.ComplianceRate)
			}
		default:
			if ts.MissingCount != 0 || ts.ComplianceRate != 100.0 {
				t.Errorf("%s: missing %d rate %v, want 0 and 100.0", ts.Tag, ts.MissingCount, ts.ComplianceRate)
			}
		}
	}
}

func TestBuildRounding(t *testing.T) {
	run := &scan.RunResult{}
	// 1 of 3 compliant: 33.333...% rounds to 33.33.
	run.Results = append(run.Results,
		result("g", "vm", scan.StatusCompliant),
		result("g", "vm", scan.StatusNonCompliant, "Owner"),
		result("g", "vm", scan.StatusNonCompliant, "Owner"),
	)
	rep := Build(run, testSpec, 0, time.Now().UTC())
	if rep.Totals.ComplianceRate != 33.33 {
		t.Errorf("ComplianceRate = %v, want 33.33", rep.Totals.ComplianceRate)
	}
}

func TestBuildOrderInvariance(t *testing.T) {
	base := []scan.ComplianceResult{
		result("g1", "vm", scan.StatusCompliant),
		result("g2", "vm", scan.StatusNonCompliant, "Owner"),
		result("g2", "bucket", scan.StatusRemediated, "Environment"),
		result("g3", "bucket", scan.StatusRemediationFailed, "Owner", "CostCenter"),
		result("g1", "vm", scan.StatusNonCompliant, "CostCenter"),
	}

	build := func(results []scan.ComplianceResult) *report.Report {
		run := &scan.RunResult{RunID: "run-x", Results: results}
		return Build(run, testSpec, 0, time.Unix(0, 0))
	}

	want := build(base)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := make([]scan.ComplianceResult, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := build(shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("report differs for shuffled input %d:\ngot  %+v\nwant %+v", i, got, want)
		}
	}
}

func TestBuildStatusCounts(t *testing.T) {
	run := &scan.RunResult{Results: []scan.ComplianceResult{
		result("g", "vm", scan.StatusCompliant),
		result("g", "vm", scan.StatusNonCompliant, "Owner"),
		result("g", "vm", scan.StatusRemediated, "Owner"),
		result("g", "vm", scan.StatusRemediationFailed, "Owner"),
	}}
	rep := Build(run, testSpec, 0, time.Now().UTC())

	if rep.Totals.Compliant != 1 || rep.Totals.NonCompliant != 1 ||
		rep.Totals.Remediated != 1 || rep.Totals.RemediationFailed != 1 {
		t.Errorf("Totals = %+v, want one of each status", rep.Totals)
	}
	if rep.TypeBreakdown["vm"][scan.StatusRemediated] != 1 {
		t.Errorf("TypeBreakdown = %v, want vm/remediated = 1", rep.TypeBreakdown)
	}
}

func TestTopViolatorsTieBreak(t *testing.T) {
	run := &scan.RunResult{}
	// groupC has 3 violations; groupA and groupB tie at 2.
	for i := 0; i < 3; i++ {
		run.Results = append(run.Results, result("groupC", "vm", scan.StatusNonCompliant, "Owner"))
	}
	for i := 0; i < 2; i++ {
		run.Results = append(run.Results, result("groupB", "vm", scan.StatusNonCompliant, "Owner"))
		run.Results = append(run.Results, result("groupA", "vm", scan.StatusRemediationFailed, "Owner"))
	}

	rep := Build(run, testSpec, 2, time.Now().UTC())

	want := []report.GroupViolations{
		{Group: "groupC", Count: 3},
		{Group: "groupA", Count: 2},
	}
	if !reflect.DeepEqual(rep.TopViolators, want) {
		t.Errorf("TopViolators = %v, want %v", rep.TopViolators, want)
	}
}

func TestRemediatedCountsAsViolation(t *testing.T) {
	run := &scan.RunResult{Results: []scan.ComplianceResult{
		result("g1", "vm", scan.StatusRemediated, "Owner"),
	}}
	rep := Build(run, testSpec, 0, time.Now().UTC())

	if len(rep.TopViolators) != 1 || rep.TopViolators[0].Group != "g1" {
		t.Errorf("TopViolators = %v, want g1 counted for a remediated resource", rep.TopViolators)
	}
}

func TestIncompleteAccountsSorted(t *testing.T) {
	run := &scan.RunResult{Accounts: []scan.AccountScan{
		{Account: "zeta", Status: scan.AccountIncomplete, Error: "throttled"},
		{Account: "alpha", Status: scan.AccountCompleted},
		{Account: "beta", Status: scan.AccountIncomplete, Error: "denied"},
	}}
	rep := Build(run, testSpec, 0, time.Now().UTC())

	want := []string{"beta", "zeta"}
	if !reflect.DeepEqual(rep.IncompleteAccounts, want) {
		t.Errorf("IncompleteAccounts = %v, want %v", rep.IncompleteAccounts, want)
	}
}

func TestCostTotals(t *testing.T) {
	cost := func(v float64) *float64 { return &v }
	run := &scan.RunResult{Results: []scan.ComplianceResult{
		{ResourceID: "a/b/c/d", ResourceType: "vm", Group: "b", Status: scan.StatusCompliant, MissingTags: []string{}, CostEstimate: cost(10.5)},
		{ResourceID: "a/b/c/e", ResourceType: "vm", Group: "b", Status: scan.StatusCompliant, MissingTags: []string{}, CostEstimate: cost(4.5)},
		{ResourceID: "a/b/c/f", ResourceType: "vm", Group: "b", Status: scan.StatusCompliant, MissingTags: []string{}},
	}}
	rep := Build(run, testSpec, 0, time.Now().UTC())

	if rep.Totals.EstimatedCost != 15.0 {
		t.Errorf("EstimatedCost = %v, want 15.0", rep.Totals.EstimatedCost)
	}
}
