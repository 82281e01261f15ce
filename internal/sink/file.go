// Package sink persists the terminal artifacts of a run: the aggregate
// report document and the flat per-resource detail record set. Field names
// are stable across versions so external dashboards can consume them.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// Sink receives the run's artifacts once aggregation is over.
type Sink interface {
	Write(ctx context.Context, rep *report.Report, results []scan.ComplianceResult) error
}

// FileSink writes report-<runid>.json and details-<runid>.json under a
// directory.
type FileSink struct {
	dir string
	log *logger.Logger
}

// NewFileSink creates a file sink rooted at dir.
func NewFileSink(dir string, log *logger.Logger) *FileSink {
	return &FileSink{dir: dir, log: log}
}

// Write persists both artifacts. A failure here is a write error, not a
// scan error: the caller already holds a valid in-memory report.
func (s *FileSink) Write(ctx context.Context, rep *report.Report, results []scan.ComplianceResult) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return faults.SinkWrite(s.dir, err)
	}

	reportPath := filepath.Join(s.dir, fmt.Sprintf("report-%s.json", rep.RunID))
	if err := writeJSON(reportPath, rep); err != nil {
		return err
	}

	detail := struct {
		RunID     string                  `json:"run_id"`
		StartedAt string                  `json:"started_at"`
		Results   []scan.ComplianceResult `json:"results"`
	}{
		RunID:     rep.RunID,
		StartedAt: rep.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		Results:   results,
	}
	detailPath := filepath.Join(s.dir, fmt.Sprintf("details-%s.json", rep.RunID))
	if err := writeJSON(detailPath, detail); err != nil {
		return err
	}

	s.log.WithFields(map[string]interface{}{
		"report":  reportPath,
		"details": detailPath,
	}).Info("Report artifacts written")
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return faults.SinkWrite(path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return faults.SinkWrite(path, err)
	}
	return nil
}
