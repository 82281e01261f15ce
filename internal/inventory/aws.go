package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pratik-mahalle/tagaudit/internal/domain/scan"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/faults"
	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// AWS resource type strings.
const (
	TypeEC2Instance = "ec2-instance"
	TypeS3Bucket    = "s3-bucket"
)

// AWSCredentials holds the access keys and the regions to scan. An empty
// region list falls back to DescribeRegions.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Regions         []string
}

// AWSSource enumerates EC2 instances per region plus the account's S3
// buckets. Regions partition the inventory into independently scannable
// accounts; buckets are global and attributed to the first region only.
type AWSSource struct {
	creds AWSCredentials
	cfg   aws.Config
	log   *logger.Logger
}

// NewAWSSource creates an AWS inventory source.
func NewAWSSource(ctx context.Context, creds AWSCredentials, log *logger.Logger) (*AWSSource, error) {
	var cfg aws.Config
	var err error
	region := "us-east-1"
	if len(creds.Regions) > 0 {
		region = creds.Regions[0]
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSSource{creds: creds, cfg: cfg, log: log}, nil
}

func (s *AWSSource) Provider() string { return "aws" }

// Accounts returns the configured regions, or every region the credentials
// can see when none are configured.
func (s *AWSSource) Accounts(ctx context.Context) ([]string, error) {
	if len(s.creds.Regions) > 0 {
		return s.creds.Regions, nil
	}
	client := ec2.NewFromConfig(s.cfg)
	resp, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, classifyAWS("", err)
	}
	var regions []string
	for _, r := range resp.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("no AWS regions visible to the configured credentials")
	}
	return regions, nil
}

func (s *AWSSource) Resources(account string) Pager {
	return &awsPager{
		src:            s,
		region:         account,
		includeBuckets: account == s.cfg.Region,
	}
}

// UpdateTags writes the merged tag set back. Identifiers are
// "<region>/<service>/<kind>/<name>" paths produced by the pager.
func (s *AWSSource) UpdateTags(ctx context.Context, account, resourceID string, tags map[string]string) error {
	region, service, name, err := splitAWSID(resourceID)
	if err != nil {
		return faults.Wrap(err, faults.CodeInternal, "malformed AWS resource identifier", false)
	}
	cfg := s.cfg
	cfg.Region = region

	switch service {
	case "ec2":
		// CreateTags with the merged set rewrites each key to the value it
		// already carries, so the write is repeat-safe.
		client := ec2.NewFromConfig(cfg)
		input := &ec2.CreateTagsInput{Resources: []string{name}}
		for k, v := range tags {
			k, v := k, v
			input.Tags = append(input.Tags, ec2types.Tag{Key: &k, Value: &v})
		}
		if _, err := client.CreateTags(ctx, input); err != nil {
			return classifyAWS(resourceID, err)
		}
		return nil
	case "s3":
		// PutBucketTagging replaces the whole set, which is why the merged
		// set (not just the defaults) is written.
		client := s3.NewFromConfig(cfg)
		tagging := &s3types.Tagging{}
		for k, v := range tags {
			k, v := k, v
			tagging.TagSet = append(tagging.TagSet, s3types.Tag{Key: &k, Value: &v})
		}
		if _, err := client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{Bucket: &name, Tagging: tagging}); err != nil {
			return classifyAWS(resourceID, err)
		}
		return nil
	}
	return faults.New(faults.CodeInternal, fmt.Sprintf("unsupported AWS service %q in identifier", service), false)
}

type awsPager struct {
	src            *AWSSource
	region         string
	includeBuckets bool
	ec2Pager       *ec2.DescribeInstancesPaginator
	bucketsDone    bool
}

func (p *awsPager) Next(ctx context.Context) ([]scan.ResourceRecord, bool, error) {
	if p.ec2Pager == nil {
		cfg := p.src.cfg
		cfg.Region = p.region
		p.ec2Pager = ec2.NewDescribeInstancesPaginator(ec2.NewFromConfig(cfg), &ec2.DescribeInstancesInput{})
	}

	if p.ec2Pager.HasMorePages() {
		page, err := p.ec2Pager.NextPage(ctx)
		if err != nil {
			return nil, false, classifyAWS("", err)
		}
		var records []scan.ResourceRecord
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				records = append(records, p.instanceRecord(inst))
			}
		}
		done := !p.ec2Pager.HasMorePages() && !p.includeBuckets
		return records, done, nil
	}

	if p.includeBuckets && !p.bucketsDone {
		p.bucketsDone = true
		records, err := p.src.listBuckets(ctx, p.region)
		return records, true, err
	}

	return nil, true, nil
}

func (p *awsPager) instanceRecord(inst ec2types.Instance) scan.ResourceRecord {
	id := "unknown"
	if inst.InstanceId != nil {
		id = *inst.InstanceId
	}
	name := id
	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		if t.Key == nil {
			continue
		}
		value := ""
		if t.Value != nil {
			value = *t.Value
		}
		tags[*t.Key] = value
		if *t.Key == "Name" && value != "" {
			name = value
		}
	}
	return scan.ResourceRecord{
		ID:      fmt.Sprintf("%s/ec2/instance/%s", p.region, id),
		Name:    name,
		Type:    TypeEC2Instance,
		Account: p.region,
		Tags:    tags,
	}
}

func (s *AWSSource) listBuckets(ctx context.Context, region string) ([]scan.ResourceRecord, error) {
	client := s3.NewFromConfig(s.cfg)
	resp, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classifyAWS("", err)
	}

	var records []scan.ResourceRecord
	for _, b := range resp.Buckets {
		if b.Name == nil {
			continue
		}
		name := *b.Name
		tags := map[string]string{}
		tagResp, err := client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: b.Name})
		if err != nil {
			// Buckets without a tag set report NoSuchTagSet; anything else
			// is a real enumeration fault.
			var apiErr smithy.APIError
			if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NoSuchTagSet" {
				return records, classifyAWS(name, err)
			}
		} else {
			for _, t := range tagResp.TagSet {
				if t.Key != nil {
					value := ""
					if t.Value != nil {
						value = *t.Value
					}
					tags[*t.Key] = value
				}
			}
		}
		records = append(records, scan.ResourceRecord{
			ID:      fmt.Sprintf("%s/s3/bucket/%s", region, name),
			Name:    name,
			Type:    TypeS3Bucket,
			Account: region,
			Tags:    tags,
		})
	}
	return records, nil
}

// splitAWSID parses "<region>/<service>/<kind>/<name>" identifiers.
func splitAWSID(id string) (region, service, name string, err error) {
	parts := strings.SplitN(id, "/", 4)
	if len(parts) != 4 {
		return "", "", "", fmt.Errorf("identifier %q does not encode region/service/kind/name", id)
	}
	return parts[0], parts[1], parts[3], nil
}

// classifyAWS maps an AWS SDK error into the engine's fault taxonomy.
func classifyAWS(resourceID string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException", "SlowDown":
			return faults.Throttled(err)
		case "ServiceUnavailable", "InternalError", "InternalFailure", "RequestTimeout":
			return faults.Unavailable(err)
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "AuthFailure":
			return faults.Denied(err)
		case "NoSuchBucket", "InvalidInstanceID.NotFound", "InvalidID", "ResourceNotFoundException":
			return faults.NotFound(resourceID, err)
		}
		return faults.Wrap(err, faults.CodeInternal, "AWS API error", false)
	}
	return faults.InternalError("AWS API error", err)
}
