package remediator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/testutil"
)

var testSpec = &policy.Spec{
	RequiredTags: []string{"Environment", "Owner", "CostCenter"},
	Defaults: map[string]string{
		"Environment": "production",
		"CostCenter":  "unassigned",
	},
}

func newExecutor(t *testing.T, maxAttempts int) (*Executor, *int) {
	t.Helper()
	exec := New(Config{
		MaxAttempts:       maxAttempts,
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffCap:        time.Second,
	}, logger.New(logger.Config{Level: "error", Format: "console"}))

	sleeps := 0
	exec.sleep = func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	}
	return exec, &sleeps
}

func nonCompliant(missing ...string) scan.ComplianceResult {
	return scan.ComplianceResult{
		ResourceID:  "us-east-1/ec2/instance/i-1",
		Status:      scan.StatusNonCompliant,
		Tags:        map[string]string{"Owner": "team-a"},
		MissingTags: missing,
	}
}

func TestRemediateSuccess(t *testing.T) {
	exec, _ := newExecutor(t, 3)
	w := &testutil.FakeWriter{}

	res := exec.Remediate(context.Background(), w, nonCompliant("Environment", "CostCenter"), testSpec)

	if res.Status != scan.StatusRemediated {
		t.Fatalf("Status = %q, want remediated", res.Status)
	}
	if len(w.Calls) != 1 {
		t.Fatalf("writer calls = %d, want 1", len(w.Calls))
	}

	written := w.Calls[0].Tags
	if written["Environment"] != "production" || written["CostCenter"] != "unassigned" {
		t.Errorf("written tags = %v, want defaults merged in", written)
	}
	if written["Owner"] != "team-a" {
		t.Errorf("written tags = %v, want existing Owner preserved", written)
	}
	if res.Tags["Environment"] != "production" {
		t.Errorf("result tags = %v, want merged snapshot", res.Tags)
	}
}

func TestRemediateNeverOverwritesExisting(t *testing.T) {
	exec, _ := newExecutor(t, 1)
	w := &testutil.FakeWriter{}

	// Environment is missing per evaluation but present in the snapshot by
	// the time remediation runs; the existing value must win.
	res := scan.ComplianceResult{
		ResourceID:  "us-east-1/ec2/instance/i-2",
		Status:      scan.StatusNonCompliant,
		Tags:        map[string]string{"Environment": "staging"},
		MissingTags: []string{"Environment", "CostCenter"},
	}

	out := exec.Remediate(context.Background(), w, res, testSpec)

	if out.Status != scan.StatusRemediated {
		t.Fatalf("Status = %q, want remediated", out.Status)
	}
	if w.Calls[0].Tags["Environment"] != "staging" {
		t.Errorf("Environment = %q, want existing value staging kept", w.Calls[0].Tags["Environment"])
	}
	if w.Calls[0].Tags["CostCenter"] != "unassigned" {
		t.Errorf("CostCenter = %q, want default unassigned", w.Calls[0].Tags["CostCenter"])
	}
}

func TestRemediateNoDefault(t *testing.T) {
	exec, _ := newExecutor(t, 3)
	w := &testutil.FakeWriter{}

	// Owner has no default: no write may be attempted at all.
	res := exec.Remediate(context.Background(), w, nonCompliant("Environment", "Owner"), testSpec)

	if res.Status != scan.StatusRemediationFailed {
		t.Fatalf("Status = %q, want remediation_failed", res.Status)
	}
	if res.Reason != faults.CodeNoDefault {
		t.Errorf("Reason = %q, want %q", res.Reason, faults.CodeNoDefault)
	}
	if len(w.Calls) != 0 {
		t.Errorf("writer calls = %d, want 0 when a default is missing", len(w.Calls))
	}
}

func TestRemediateTransientRetryThenSuccess(t *testing.T) {
	exec, sleeps := newExecutor(t, 4)
	w := &testutil.FakeWriter{Errs: []error{
		faults.Throttled(errors.New("429")),
		faults.Unavailable(errors.New("503")),
		nil,
	}}

	res := exec.Remediate(context.Background(), w, nonCompliant("Environment"), testSpec)

	if res.Status != scan.StatusRemediated {
		t.Fatalf("Status = %q, want remediated after retries", res.Status)
	}
	if len(w.Calls) != 3 {
		t.Errorf("writer calls = %d, want 3", len(w.Calls))
	}
	if *sleeps != 2 {
		t.Errorf("backoff sleeps = %d, want 2", *sleeps)
	}
}

func TestRemediatePermanentFaultNoRetry(t *testing.T) {
	exec, sleeps := newExecutor(t, 4)
	w := &testutil.FakeWriter{Errs: []error{
		faults.Denied(errors.New("403")),
	}}

	res := exec.Remediate(context.Background(), w, nonCompliant("Environment", "CostCenter"), testSpec)

	if res.Status != scan.StatusRemediationFailed {
		t.Fatalf("Status = %q, want remediation_failed", res.Status)
	}
	if res.Reason != faults.CodeDenied {
		t.Errorf("Reason = %q, want %q", res.Reason, faults.CodeDenied)
	}
	if len(w.Calls) != 1 {
		t.Errorf("writer calls = %d, want 1 for a permanent fault", len(w.Calls))
	}
	if *sleeps != 0 {
		t.Errorf("backoff sleeps = %d, want 0", *sleeps)
	}
	// The missing list survives so a later run can retry.
	if len(res.MissingTags) != 2 {
		t.Errorf("MissingTags = %v, want preserved", res.MissingTags)
	}
}

func TestRemediateExhaustsAttempts(t *testing.T) {
	exec, sleeps := newExecutor(t, 3)
	throttled := faults.Throttled(errors.New("429"))
	w := &testutil.FakeWriter{Errs: []error{throttled, throttled, throttled}}

	res := exec.Remediate(context.Background(), w, nonCompliant("Environment"), testSpec)

	if res.Status != scan.StatusRemediationFailed {
		t.Fatalf("Status = %q, want remediation_failed after exhausting attempts", res.Status)
	}
	if res.Reason != faults.CodeThrottled {
		t.Errorf("Reason = %q, want %q", res.Reason, faults.CodeThrottled)
	}
	if len(w.Calls) != 3 {
		t.Errorf("writer calls = %d, want 3", len(w.Calls))
	}
	if *sleeps != 2 {
		t.Errorf("backoff sleeps = %d, want 2 (no sleep after the last attempt)", *sleeps)
	}
}

func TestRemediateSkipsOtherStatuses(t *testing.T) {
	exec, _ := newExecutor(t, 3)
	w := &testutil.FakeWriter{}

	for _, status := range []string{scan.StatusCompliant, scan.StatusRemediated, scan.StatusRemediationFailed} {
		res := scan.ComplianceResult{ResourceID: "x", Status: status}
		out := exec.Remediate(context.Background(), w, res, testSpec)
		if out.Status != status {
			t.Errorf("status %q changed to %q", status, out.Status)
		}
	}
	if len(w.Calls) != 0 {
		t.Errorf("writer calls = %d, want 0", len(w.Calls))
	}
}

func TestBackoffProgression(t *testing.T) {
	exec := New(Config{
		MaxAttempts:       5,
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffCap:        300 * time.Millisecond,
	}, logger.New(logger.Config{Level: "error", Format: "console"}))

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond, // capped
		300 * time.Millisecond,
	}
	for i, d := range want {
		if got := exec.backoff(i + 1); got != d {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, d)
		}
	}
}
