package scan

import (
	"strings"
	"time"
)

// ResourceRecord is a read-only snapshot of a cloud resource as read from
// the inventory. The engine never mutates a record in place; remediation
// produces an updated tag mapping on the ComplianceResult instead.
type ResourceRecord struct {
	// ID is the globally unique resource identifier. It encodes the
	// account/group/type/name hierarchy, e.g. an ARM resource ID or a
	// "provider/account/service/name" path.
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Account      string            `json:"account"`
	Tags         map[string]string `json:"tags,omitempty"`
	CostEstimate *float64          `json:"cost_estimate,omitempty"`
}

// Compliance statuses for a scanned resource.
const (
	StatusCompliant         = "compliant"
	StatusNonCompliant      = "non_compliant"
	StatusRemediated        = "remediated"
	StatusRemediationFailed = "remediation_failed"
)

// GroupUnknown is the sentinel owning group for resources whose identifier
// does not encode a recognizable hierarchy.
const GroupUnknown = "unknown"

// ComplianceResult is the per-resource verdict for one scan run.
type ComplianceResult struct {
	ResourceID   string            `json:"resource_id"`
	ResourceName string            `json:"resource_name"`
	ResourceType string            `json:"resource_type"`
	Group        string            `json:"group"`
	Account      string            `json:"account"`
	Tags         map[string]string `json:"tags,omitempty"`
	MissingTags  []string          `json:"missing_tags"`
	Status       string            `json:"status"`
	// Reason carries the fault code when Status is remediation_failed.
	Reason       string    `json:"reason,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
	CostEstimate *float64  `json:"cost_estimate,omitempty"`
}

// Account scan statuses.
const (
	AccountCompleted  = "completed"
	AccountIncomplete = "incomplete"
)

// AccountScan records the outcome of enumerating one account.
type AccountScan struct {
	Account   string `json:"account"`
	Status    string `json:"status"`
	Resources int    `json:"resources"`
	// Error holds the enumeration fault for incomplete accounts.
	Error string `json:"error,omitempty"`
}

// RunResult is the full output of one scan run: the append-only result
// collection plus the per-account enumeration summary.
type RunResult struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Accounts  []AccountScan      `json:"accounts"`
	Results   []ComplianceResult `json:"results"`
}

// Completed reports whether every account enumerated fully.
func (r *RunResult) Completed() bool {
	for _, a := range r.Accounts {
		if a.Status != AccountCompleted {
			return false
		}
	}
	return true
}

// OwnerGroup extracts the owning group from a resource identifier.
// ARM-style identifiers ("/subscriptions/<s>/resourceGroups/<g>/...") yield
// the resource group segment; slash-separated "account/group/type/name"
// paths yield the second segment. Anything else degrades to GroupUnknown.
func OwnerGroup(id string) string {
	if id == "" {
		return GroupUnknown
	}
	if strings.HasPrefix(id, "/") {
		segments := strings.Split(strings.TrimPrefix(id, "/"), "/")
		for i := 0; i < len(segments)-1; i++ {
			if strings.EqualFold(segments[i], "resourceGroups") && segments[i+1] != "" {
				return segments[i+1]
			}
		}
		return GroupUnknown
	}
	segments := strings.Split(id, "/")
	if len(segments) >= 4 && segments[1] != "" {
		return segments[1]
	}
	return GroupUnknown
}
