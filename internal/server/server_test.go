package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/report"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
	"github.com/pratik-mahalle/tagaudit/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	log := logger.New(logger.Config{Level: "error", Format: "console"})
	return New(db, log), db
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLatestReportNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/latest", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 with no runs", rec.Code)
	}
}

func TestGetReport(t *testing.T) {
	srv, db := newTestServer(t)
	rep := &report.Report{
		RunID:     "run-7",
		StartedAt: time.Now().UTC(),
		Totals:    report.Totals{Resources: 5, Compliant: 5, ComplianceRate: 100.0},
	}
	if err := db.SaveRun(context.Background(), "aws", rep); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/run-7", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got report.Report
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.RunID != "run-7" || got.Totals.ComplianceRate != 100.0 {
		t.Errorf("body = %+v, want the stored report", got)
	}
}

func TestListRuns(t *testing.T) {
	srv, db := newTestServer(t)
	for i, id := range []string{"run-1", "run-2"} {
		rep := &report.Report{
			RunID:     id,
			StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveRun(context.Background(), "gcp", rep); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Runs []store.RunRow `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Runs) != 2 {
		t.Errorf("runs = %d, want 2", len(body.Runs))
	}
}
