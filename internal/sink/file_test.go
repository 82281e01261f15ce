package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

func TestFileSinkWrite(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.Config{Level: "error", Format: "console"})
	s := NewFileSink(dir, log)

	rep := &report.Report{
		RunID:     "run-42",
		StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Totals:    report.Totals{Resources: 2, Compliant: 1, NonCompliant: 1, ComplianceRate: 50.0},
	}
	results := []scan.ComplianceResult{
		{ResourceID: "a/b/c/d", Status: scan.StatusCompliant, MissingTags: []string{}},
		{ResourceID: "a/b/c/e", Status: scan.StatusNonCompliant, MissingTags: []string{"Owner"}},
	}

	if err := s.Write(context.Background(), rep, results); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(dir, "report-run-42.json"))
	if err != nil {
		t.Fatalf("reading report artifact: %v", err)
	}
	var gotReport report.Report
	if err := json.Unmarshal(reportData, &gotReport); err != nil {
		t.Fatalf("parsing report artifact: %v", err)
	}
	if gotReport.Totals.ComplianceRate != 50.0 {
		t.Errorf("ComplianceRate = %v, want 50.0", gotReport.Totals.ComplianceRate)
	}

	detailData, err := os.ReadFile(filepath.Join(dir, "details-run-42.json"))
	if err != nil {
		t.Fatalf("reading details artifact: %v", err)
	}
	var detail struct {
		RunID   string                  `json:"run_id"`
		Results []scan.ComplianceResult `json:"results"`
	}
	if err := json.Unmarshal(detailData, &detail); err != nil {
		t.Fatalf("parsing details artifact: %v", err)
	}
	if detail.RunID != "run-42" {
		t.Errorf("detail run_id = %q, want run-42", detail.RunID)
	}
	if len(detail.Results) != 2 {
		t.Errorf("detail results = %d, want 2", len(detail.Results))
	}
}

func TestFileSinkCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	log := logger.New(logger.Config{Level: "error", Format: "console"})
	s := NewFileSink(dir, log)

	rep := &report.Report{RunID: "run-1", StartedAt: time.Now().UTC()}
	if err := s.Write(context.Background(), rep, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report-run-1.json")); err != nil {
		t.Errorf("report artifact missing: %v", err)
	}
}

func TestFileSinkWriteFault(t *testing.T) {
	// A plain file where the directory should be forces a sink fault.
	base := t.TempDir()
	blocked := filepath.Join(base, "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logger.New(logger.Config{Level: "error", Format: "console"})
	s := NewFileSink(blocked, log)
	rep := &report.Report{RunID: "run-1", StartedAt: time.Now().UTC()}

	if err := s.Write(context.Background(), rep, nil); err == nil {
		t.Fatal("Write() error = nil, want sink fault")
	}
}
