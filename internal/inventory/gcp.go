package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	computepb "google.golang.org/genproto/googleapis/cloud/compute/v1"

	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// GCP resource type strings.
const (
	TypeGCEInstance = "gce-instance"
	TypeGCSBucket   = "gcs-bucket"
)

// GCPCredentials holds the projects to scan and an optional inline service
// account key.
type GCPCredentials struct {
	Projects           []string
	ServiceAccountJSON string
}

// GCPSource enumerates Compute Engine instances and Cloud Storage buckets
// per project. GCP labels serve as the tag mapping.
type GCPSource struct {
	creds GCPCredentials
	opts  []option.ClientOption
	log   *logger.Logger
}

// NewGCPSource creates a GCP inventory source.
func NewGCPSource(creds GCPCredentials, log *logger.Logger) (*GCPSource, error) {
	if len(creds.Projects) == 0 {
		return nil, fmt.Errorf("no GCP projects configured")
	}
	var opts []option.ClientOption
	if creds.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.ServiceAccountJSON)))
	}
	return &GCPSource{creds: creds, opts: opts, log: log}, nil
}

func (s *GCPSource) Provider() string { return "gcp" }

func (s *GCPSource) Accounts(ctx context.Context) ([]string, error) {
	return s.creds.Projects, nil
}

func (s *GCPSource) Resources(account string) Pager {
	return &gcpPager{src: s, project: account}
}

// UpdateTags writes the merged label set. Identifiers are
// "<project>/<zone-or-location>/<kind>/<name>" paths produced by the pager.
func (s *GCPSource) UpdateTags(ctx context.Context, account, resourceID string, tags map[string]string) error {
	parts := strings.SplitN(resourceID, "/", 4)
	if len(parts) != 4 {
		return faults.New(faults.CodeInternal, fmt.Sprintf("identifier %q does not encode project/zone/kind/name", resourceID), false)
	}
	project, zone, kind, name := parts[0], parts[1], parts[2], parts[3]

	switch kind {
	case "instance":
		return s.setInstanceLabels(ctx, project, zone, name, tags)
	case "bucket":
		return s.setBucketLabels(ctx, name, tags)
	}
	return faults.New(faults.CodeInternal, fmt.Sprintf("unsupported GCP resource kind %q", kind), false)
}

// setInstanceLabels fetches the current label fingerprint and writes the
// merged set in one SetLabels call. The fingerprint makes the write
// conditional, so a concurrent change fails cleanly instead of clobbering.
func (s *GCPSource) setInstanceLabels(ctx context.Context, project, zone, name string, labels map[string]string) error {
	client, err := compute.NewInstancesRESTClient(ctx, s.opts...)
	if err != nil {
		return faults.InternalError("failed to create GCP compute client", err)
	}
	defer client.Close()

	inst, err := client.Get(ctx, &computepb.GetInstanceRequest{
		Project:  project,
		Zone:     zone,
		Instance: name,
	})
	if err != nil {
		return classifyGCP(name, err)
	}

	op, err := client.SetLabels(ctx, &computepb.SetLabelsInstanceRequest{
		Project:  project,
		Zone:     zone,
		Instance: name,
		InstancesSetLabelsRequestResource: &computepb.InstancesSetLabelsRequest{
			LabelFingerprint: inst.LabelFingerprint,
			Labels:           labels,
		},
	})
	if err != nil {
		return classifyGCP(name, err)
	}
	if err := op.Wait(ctx); err != nil {
		return classifyGCP(name, err)
	}
	return nil
}

func (s *GCPSource) setBucketLabels(ctx context.Context, name string, labels map[string]string) error {
	client, err := storage.NewClient(ctx, s.opts...)
	if err != nil {
		return faults.InternalError("failed to create GCP storage client", err)
	}
	defer client.Close()

	var update storage.BucketAttrsToUpdate
	for k, v := range labels {
		update.SetLabel(k, v)
	}
	if _, err := client.Bucket(name).Update(ctx, update); err != nil {
		return classifyGCP(name, err)
	}
	return nil
}

type gcpPager struct {
	src     *GCPSource
	project string

	instClient *compute.InstancesClient
	instIt     *compute.InstancesScopedListPairIterator
	bucketsDone bool
}

// Next yields one compute zone's instances per call, then the project's
// buckets as the final page.
func (p *gcpPager) Next(ctx context.Context) ([]scan.ResourceRecord, bool, error) {
	if p.instClient == nil && p.instIt == nil {
		client, err := compute.NewInstancesRESTClient(ctx, p.src.opts...)
		if err != nil {
			return nil, false, faults.InternalError("failed to create GCP compute client", err)
		}
		p.instClient = client
		p.instIt = client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: p.project})
	}

	if p.instIt != nil {
		pair, err := p.instIt.Next()
		if err == iterator.Done {
			p.instClient.Close()
			p.instClient = nil
			p.instIt = nil
		} else if err != nil {
			p.instClient.Close()
			p.instClient = nil
			p.instIt = nil
			return nil, false, classifyGCP("", err)
		} else {
			var records []scan.ResourceRecord
			if pair.Value != nil {
				for _, inst := range pair.Value.Instances {
					records = append(records, p.instanceRecord(inst))
				}
			}
			return records, false, nil
		}
	}

	if !p.bucketsDone {
		p.bucketsDone = true
		records, err := p.listBuckets(ctx)
		return records, true, err
	}

	return nil, true, nil
}

func (p *gcpPager) instanceRecord(inst *computepb.Instance) scan.ResourceRecord {
	zone := path.Base(inst.GetZone())
	name := inst.GetName()
	labels := inst.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	return scan.ResourceRecord{
		ID:      fmt.Sprintf("%s/%s/instance/%s", p.project, zone, name),
		Name:    name,
		Type:    TypeGCEInstance,
		Account: p.project,
		Tags:    labels,
	}
}

func (p *gcpPager) listBuckets(ctx context.Context) ([]scan.ResourceRecord, error) {
	client, err := storage.NewClient(ctx, p.src.opts...)
	if err != nil {
		return nil, faults.InternalError("failed to create GCP storage client", err)
	}
	defer client.Close()

	var records []scan.ResourceRecord
	it := client.Buckets(ctx, p.project)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return records, classifyGCP("", err)
		}
		labels := attrs.Labels
		if labels == nil {
			labels = map[string]string{}
		}
		records = append(records, scan.ResourceRecord{
			ID:      fmt.Sprintf("%s/%s/bucket/%s", p.project, strings.ToLower(attrs.Location), attrs.Name),
			Name:    attrs.Name,
			Type:    TypeGCSBucket,
			Account: p.project,
			Tags:    labels,
		})
	}
	return records, nil
}

// classifyGCP maps a Google API error into the engine's fault taxonomy.
func classifyGCP(resourceID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return faults.Throttled(err)
		case http.StatusNotFound:
			return faults.NotFound(resourceID, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return faults.Denied(err)
		}
		if apiErr.Code >= http.StatusInternalServerError {
			return faults.Unavailable(err)
		}
		return faults.Wrap(err, faults.CodeInternal, "GCP API error", false)
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return faults.NotFound(resourceID, err)
	}
	return faults.InternalError("GCP API error", err)
}
