// Package evaluator maps a resource snapshot and a tagging policy to a
// compliance verdict. Evaluation is total and side-effect free: malformed
// identifiers degrade to the unknown-group sentinel instead of failing,
// and no resource is ever dropped.
package evaluator

import (
	"time"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
)

// Evaluate produces exactly one ComplianceResult for the record. Missing-tag
// detection is a case-sensitive exact key match; a tag present with an empty
// value still counts as present. The missing list follows the policy's
// declared order regardless of the resource's own tag layout.
func Evaluate(rec scan.ResourceRecord, spec *policy.Spec, scannedAt time.Time) scan.ComplianceResult {
	missing := make([]string, 0, len(spec.RequiredTags))
	for _, key := range spec.RequiredTags {
		if _, present := rec.Tags[key]; !present {
			missing = append(missing, key)
		}
	}

	status := scan.StatusCompliant
	if len(missing) > 0 {
		status = scan.StatusNonCompliant
	}

	return scan.ComplianceResult{
		ResourceID:   rec.ID,
		ResourceName: rec.Name,
		ResourceType: rec.Type,
		Group:        scan.OwnerGroup(rec.ID),
		Account:      rec.Account,
		Tags:         copyTags(rec.Tags),
		MissingTags:  missing,
		Status:       status,
		ScannedAt:    scannedAt,
		CostEstimate: rec.CostEstimate,
	}
}

// copyTags snapshots the record's tag map so later remediation merges never
// alias the inventory's view of the resource.
func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
