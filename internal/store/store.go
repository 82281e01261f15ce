// Package store keeps the local run history in an embedded SQLite
// database so past reports can be listed and re-read across invocations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
)

// ErrNoRuns is returned when the history holds no completed runs yet.
var ErrNoRuns = errors.New("no scan runs recorded")

type DB struct {
	sql *sql.DB
}

// Open opens (and migrates) the run-history database at path.
func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    resources INTEGER NOT NULL,
    compliant INTEGER NOT NULL,
    non_compliant INTEGER NOT NULL,
    remediated INTEGER NOT NULL,
    remediation_failed INTEGER NOT NULL,
    compliance_rate REAL NOT NULL,
    incomplete_accounts INTEGER NOT NULL DEFAULT 0,
    report_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`)
	return err
}

// RunRow is one history entry.
type RunRow struct {
	RunID              string    `json:"run_id"`
	Provider           string    `json:"provider"`
	StartedAt          time.Time `json:"started_at"`
	Resources          int       `json:"resources"`
	Compliant          int       `json:"compliant"`
	NonCompliant       int       `json:"non_compliant"`
	Remediated         int       `json:"remediated"`
	RemediationFailed  int       `json:"remediation_failed"`
	ComplianceRate     float64   `json:"compliance_rate"`
	IncompleteAccounts int       `json:"incomplete_accounts"`
}

// SaveRun records a finished run and its full report document.
func (d *DB) SaveRun(ctx context.Context, provider string, rep *report.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `
INSERT INTO runs (run_id, provider, started_at, resources, compliant, non_compliant,
                  remediated, remediation_failed, compliance_rate, incomplete_accounts, report_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID,
		provider,
		rep.StartedAt.Unix(),
		rep.Totals.Resources,
		rep.Totals.Compliant,
		rep.Totals.NonCompliant,
		rep.Totals.Remediated,
		rep.Totals.RemediationFailed,
		rep.Totals.ComplianceRate,
		len(rep.IncompleteAccounts),
		string(data),
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, `
SELECT run_id, provider, started_at, resources, compliant, non_compliant,
       remediated, remediation_failed, compliance_rate, incomplete_accounts
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var startedAt int64
		if err := rows.Scan(&r.RunID, &r.Provider, &startedAt, &r.Resources, &r.Compliant,
			&r.NonCompliant, &r.Remediated, &r.RemediationFailed, &r.ComplianceRate,
			&r.IncompleteAccounts); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestReport returns the most recent run's full report document.
func (d *DB) LatestReport(ctx context.Context) (*report.Report, error) {
	var data string
	err := d.sql.QueryRowContext(ctx, `
SELECT report_json FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// GetReport returns the report for one run id.
func (d *DB) GetReport(ctx context.Context, runID string) (*report.Report, error) {
	var data string
	err := d.sql.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
