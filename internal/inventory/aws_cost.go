package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// awsServiceTypes maps Cost Explorer service names to the resource type
// strings the scanner emits.
var awsServiceTypes = map[string]string{
	"Amazon Elastic Compute Cloud - Compute": TypeEC2Instance,
	"Amazon Simple Storage Service":          TypeS3Bucket,
}

// AWSCostEstimator queries Cost Explorer for 30-day spend by service.
// Cost Explorer is only reachable in us-east-1.
type AWSCostEstimator struct {
	cfg aws.Config
}

// NewAWSCostEstimator creates a Cost Explorer backed estimator from the
// source's already-loaded credentials.
func NewAWSCostEstimator(src *AWSSource) *AWSCostEstimator {
	cfg := src.cfg
	cfg.Region = "us-east-1"
	return &AWSCostEstimator{cfg: cfg}
}

// AccountCosts returns the last 30 days of unblended spend keyed by
// resource type, filtered to the account's region.
func (e *AWSCostEstimator) AccountCosts(ctx context.Context, account string) (map[string]float64, error) {
	client := costexplorer.NewFromConfig(e.cfg)

	now := time.Now().UTC()
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(now.AddDate(0, 0, -30).Format("2006-01-02")),
			End:   aws.String(now.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionRegion,
				Values: []string{account},
			},
		},
	}

	result, err := client.GetCostAndUsage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("AWS Cost Explorer API error: %w", err)
	}

	costs := make(map[string]float64)
	for _, byTime := range result.ResultsByTime {
		for _, group := range byTime.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			resourceType, ok := awsServiceTypes[group.Keys[0]]
			if !ok {
				continue
			}
			metric, ok := group.Metrics["UnblendedCost"]
			if !ok || metric.Amount == nil {
				continue
			}
			amount, err := strconv.ParseFloat(*metric.Amount, 64)
			if err != nil {
				continue
			}
			costs[resourceType] += amount
		}
	}
	return costs, nil
}
