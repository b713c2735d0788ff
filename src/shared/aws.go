package common

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
)

func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func CreateDynamoClient(cfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg)
}

func CreateSecretsClient(cfg aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg)
}

func CreateSNSClient(cfg aws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}

// LoadAWSConfigWithTracing loads the default config and instruments every SDK
// client built from it with X-Ray subsegments.
func LoadAWSConfigWithTracing(ctx context.Context, segmentName string) (aws.Config, error) {
	ctx, seg := xray.BeginSubsegment(ctx, segmentName)
	defer closeSegment(seg)

	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		addSegmentError(seg, err)
		return aws.Config{}, err
	}

	awsv2.AWSV2Instrumentor(&cfg.APIOptions)
	if seg != nil {
		_ = seg.AddAnnotation("aws_config_loaded", true)
	}
	return cfg, nil
}
