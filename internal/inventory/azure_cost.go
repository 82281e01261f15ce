package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
)

// azureServiceTypes maps Cost Management service names to ARM resource
// type strings.
var azureServiceTypes = map[string]string{
	"Virtual Machines": "Microsoft.Compute/virtualMachines",
	"Storage":          "Microsoft.Storage/storageAccounts",
}

// AzureCostEstimator queries Cost Management for 30-day spend by service.
type AzureCostEstimator struct {
	src *AzureSource
}

// NewAzureCostEstimator creates a Cost Management backed estimator sharing
// the source's credential.
func NewAzureCostEstimator(src *AzureSource) *AzureCostEstimator {
	return &AzureCostEstimator{src: src}
}

// AccountCosts returns the last 30 days of pre-tax spend for one
// subscription, keyed by resource type.
func (e *AzureCostEstimator) AccountCosts(ctx context.Context, account string) (map[string]float64, error) {
	client, err := armcostmanagement.NewQueryClient(e.src.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	scope := fmt.Sprintf("subscriptions/%s", account)

	sumFunc := armcostmanagement.FunctionTypeSum
	dimGrouping := armcostmanagement.QueryColumnTypeDimension
	granularity := armcostmanagement.GranularityType("None")
	timeframe := armcostmanagement.TimeframeTypeCustom
	exportType := armcostmanagement.ExportTypeActualCost
	serviceName := "ServiceName"

	queryDef := armcostmanagement.QueryDefinition{
		Type:      &exportType,
		Timeframe: &timeframe,
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &from,
			To:   &now,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"PreTaxCost": {Name: ptrString("PreTaxCost"), Function: &sumFunc},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{Type: &dimGrouping, Name: &serviceName},
			},
		},
	}

	result, err := client.Usage(ctx, scope, queryDef, nil)
	if err != nil {
		return nil, fmt.Errorf("Azure Cost Management API error: %w", err)
	}
	if result.Properties == nil || result.Properties.Rows == nil {
		return nil, nil
	}

	colIndex := make(map[string]int)
	for i, col := range result.Properties.Columns {
		if col != nil && col.Name != nil {
			colIndex[*col.Name] = i
		}
	}
	costIdx, hasCost := colIndex["PreTaxCost"]
	serviceIdx, hasService := colIndex["ServiceName"]
	if !hasCost || !hasService {
		return nil, nil
	}

	costs := make(map[string]float64)
	for _, row := range result.Properties.Rows {
		if costIdx >= len(row) || serviceIdx >= len(row) {
			continue
		}
		amount, ok := row[costIdx].(float64)
		if !ok {
			continue
		}
		service, ok := row[serviceIdx].(string)
		if !ok {
			continue
		}
		if resourceType, mapped := azureServiceTypes[service]; mapped {
			costs[resourceType] += amount
		}
	}
	return costs, nil
}

func ptrString(s string) *string {
	return &s
}
