package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azruntime "github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// AzureCredentials holds the service principal and the subscriptions to scan.
type AzureCredentials struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	Subscriptions []string
}

// AzureSource enumerates ARM resources per subscription and writes tags
// through the Tags API merge operation.
type AzureSource struct {
	creds AzureCredentials
	cred  azcore.TokenCredential
	log   *logger.Logger
}

// NewAzureSource creates an Azure inventory source.
func NewAzureSource(creds AzureCredentials, log *logger.Logger) (*AzureSource, error) {
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return &AzureSource{creds: creds, cred: cred, log: log}, nil
}

func (s *AzureSource) Provider() string { return "azure" }

// Accounts returns the configured subscription IDs.
func (s *AzureSource) Accounts(ctx context.Context) ([]string, error) {
	if len(s.creds.Subscriptions) == 0 {
		return nil, fmt.Errorf("no Azure subscriptions configured")
	}
	return s.creds.Subscriptions, nil
}

// Resources opens a fresh ARM list cursor for one subscription.
func (s *AzureSource) Resources(account string) Pager {
	return &azurePager{src: s, subscription: account}
}

// UpdateTags merges the tag set at the resource scope. The Tags API merge
// operation leaves already-present values in place, so repeating the write
// is a no-op.
func (s *AzureSource) UpdateTags(ctx context.Context, account, resourceID string, tags map[string]string) error {
	client, err := armresources.NewTagsClient(account, s.cred, nil)
	if err != nil {
		return faults.InternalError("failed to create Azure tags client", err)
	}

	op := armresources.TagsPatchOperationMerge
	patch := armresources.TagsPatchResource{
		Operation:  &op,
		Properties: &armresources.Tags{Tags: toTagPointers(tags)},
	}
	if _, err := client.UpdateAtScope(ctx, resourceID, patch, nil); err != nil {
		return classifyAzure(resourceID, err)
	}
	return nil
}

type azurePager struct {
	src          *AzureSource
	subscription string
	pager        *azruntime.Pager[armresources.ClientListResponse]
}

func (p *azurePager) Next(ctx context.Context) ([]scan.ResourceRecord, bool, error) {
	if p.pager == nil {
		client, err := armresources.NewClient(p.subscription, p.src.cred, nil)
		if err != nil {
			return nil, false, faults.InternalError("failed to create Azure resources client", err)
		}
		p.pager = client.NewListPager(nil)
	}

	if !p.pager.More() {
		return nil, true, nil
	}

	page, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, false, classifyAzure("", err)
	}

	records := make([]scan.ResourceRecord, 0, len(page.Value))
	for _, r := range page.Value {
		if r.ID == nil {
			continue
		}
		records = append(records, scan.ResourceRecord{
			ID:      *r.ID,
			Name:    deref(r.Name),
			Type:    deref(r.Type),
			Account: p.subscription,
			Tags:    fromTagPointers(r.Tags),
		})
	}
	return records, !p.pager.More(), nil
}

// classifyAzure maps an ARM error into the engine's fault taxonomy.
func classifyAzure(resourceID string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusTooManyRequests:
			return faults.Throttled(err)
		case http.StatusNotFound:
			return faults.NotFound(resourceID, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return faults.Denied(err)
		}
		if respErr.StatusCode >= http.StatusInternalServerError {
			return faults.Unavailable(err)
		}
		return faults.Wrap(err, faults.CodeInternal, "Azure API error", false)
	}
	return faults.InternalError("Azure API error", err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toTagPointers(tags map[string]string) map[string]*string {
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		v := v
		out[k] = &v
	}
	return out
}

func fromTagPointers(tags map[string]*string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != nil {
			out[k] = *v
		} else {
			out[k] = ""
		}
	}
	return out
}
