// Package main is the Lambda entrypoint that forwards CloudWatch alarm state
// changes to PagerDuty.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"incidentbridge/src/pagerduty/client"
	"incidentbridge/src/pagerduty/config"
	"incidentbridge/src/pagerduty/forwarder"
	"incidentbridge/src/pagerduty/ledger"
	"incidentbridge/src/pagerduty/notify"
	"incidentbridge/src/pagerduty/routing"
	common "incidentbridge/src/shared"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := common.NewLogger(cfg.LogLevel, zap.String("function", "alarm-forwarder"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	handler, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize handler", zap.Error(err))
	}

	logger.Info("Alarm forwarder ready",
		zap.Strings("stages", handler.Stages()),
		zap.String("secret_name", cfg.SecretName),
		zap.Bool("ledger", cfg.LedgerEnabled()),
		zap.Bool("failure_notifications", cfg.FailureNotificationsEnabled()),
		zap.Bool("tracing", cfg.Tracing))

	lambda.Start(handler.Handle)
}

func buildHandler(ctx context.Context, cfg config.Config, logger *zap.Logger) (*forwarder.Handler, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	source := routing.NewSecretsManagerSource(common.CreateSecretsClient(awsCfg), cfg.SecretName)
	resolver := routing.NewResolver(routing.NewCache(source))

	var clientOpts []client.Option
	if cfg.Tracing {
		clientOpts = append(clientOpts, client.WithTracing(cfg.HTTPTimeout))
	}
	sender := client.New(cfg.EventsURL, cfg.HTTPTimeout, clientOpts...)

	var opts []forwarder.Option
	if cfg.LedgerEnabled() {
		l := ledger.New(common.CreateDynamoClient(awsCfg), cfg.LedgerTable)
		logger.Info("Incident ledger enabled", zap.String("table", l.TableName()))
		opts = append(opts, forwarder.WithLedger(l))
	}
	if cfg.FailureNotificationsEnabled() {
		n := notify.New(common.CreateSNSClient(awsCfg), cfg.FailureTopicARN)
		logger.Info("Failure notifications enabled", zap.String("topic_arn", n.TopicARN()))
		opts = append(opts, forwarder.WithNotifier(n))
	}

	return forwarder.New(resolver, sender, logger, opts...), nil
}

func loadAWSConfig(ctx context.Context, tracing bool) (aws.Config, error) {
	if tracing {
		return common.LoadAWSConfigWithTracing(ctx, "aws-config")
	}
	return common.LoadAWSConfig(ctx)
}
