// Package testutil provides hand-written fakes shared by the engine's
// unit tests: an in-memory inventory source with scriptable pagination
// faults and a tag writer whose failures are scripted per call.
package testutil

import (
	"context"
	"sync"

	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/inventory"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// NewTestLogger creates a quiet logger for tests.
func NewTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "console"})
}

// FakeSource is an in-memory inventory.Source. Pages holds the paginated
// records per account; FailAfterPages injects an enumeration fault after
// the given number of pages for an account.
type FakeSource struct {
	ProviderName string
	AccountList  []string
	AccountsErr  error
	Pages        map[string][][]scan.ResourceRecord
	// FailAfterPages maps account to the page count after which Next
	// returns PageErr for that account. Missing entries never fail.
	FailAfterPages map[string]int
	PageErr        error

	// WriteErr, when set, fails every UpdateTags call.
	WriteErr error

	mu     sync.Mutex
	writes []TagWrite
}

// TagWrite records one UpdateTags call.
type TagWrite struct {
	Account    string
	ResourceID string
	Tags       map[string]string
}

func (f *FakeSource) Provider() string { return f.ProviderName }

func (f *FakeSource) Accounts(_ context.Context) ([]string, error) {
	if f.AccountsErr != nil {
		return nil, f.AccountsErr
	}
	return f.AccountList, nil
}

func (f *FakeSource) Resources(account string) inventory.Pager {
	return &fakePager{src: f, account: account}
}

func (f *FakeSource) UpdateTags(_ context.Context, account, resourceID string, tags map[string]string) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	f.mu.Lock()
	f.writes = append(f.writes, TagWrite{Account: account, ResourceID: resourceID, Tags: copied})
	f.mu.Unlock()
	return nil
}

// Writes returns a snapshot of all recorded tag writes.
func (f *FakeSource) Writes() []TagWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TagWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

type fakePager struct {
	src     *FakeSource
	account string
	page    int
}

func (p *fakePager) Next(_ context.Context) ([]scan.ResourceRecord, bool, error) {
	if limit, ok := p.src.FailAfterPages[p.account]; ok && p.page >= limit {
		return nil, false, p.src.PageErr
	}
	pages := p.src.Pages[p.account]
	if p.page >= len(pages) {
		return nil, true, nil
	}
	records := pages[p.page]
	p.page++
	return records, p.page >= len(pages), nil
}

// FakeWriter is a scripted remediator.TagWriter: each call consumes the
// next error from Errs (nil means success); calls past the script succeed.
type FakeWriter struct {
	Errs []error

	mu    sync.Mutex
	Calls []TagWrite
}

func (w *FakeWriter) UpdateTags(_ context.Context, resourceID string, tags map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	w.Calls = append(w.Calls, TagWrite{ResourceID: resourceID, Tags: copied})

	idx := len(w.Calls) - 1
	if idx < len(w.Errs) {
		return w.Errs[idx]
	}
	return nil
}

// FakeEstimator returns fixed per-type cost totals for every account.
type FakeEstimator struct {
	Costs map[string]float64
	Err   error
}

func (e *FakeEstimator) AccountCosts(_ context.Context, _ string) (map[string]float64, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Costs, nil
}

// Record builds a ResourceRecord with the hierarchy-encoding ID scheme
// used by the non-ARM providers.
func Record(account, group, kind, name string, tags map[string]string) scan.ResourceRecord {
	return scan.ResourceRecord{
		ID:      account + "/" + group + "/" + kind + "/" + name,
		Name:    name,
		Type:    kind,
		Account: account,
		Tags:    tags,
	}
}
