package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"incidentbridge/src/pagerduty/client"
	"incidentbridge/src/pagerduty/config"
	"incidentbridge/src/pagerduty/forwarder"
	"incidentbridge/src/pagerduty/routing"
	"incidentbridge/src/pagerduty/types"
	common "incidentbridge/src/shared"
)

// CLI is the flag set parsed by kong.
type CLI struct {
	Event       string        `short:"e" required:"" type:"existingfile" help:"Alarm event file (JSON or YAML)"`
	RoutingFile string        `name:"routing-file" type:"existingfile" xor:"routing" help:"Routing table JSON file used instead of Secrets Manager"`
	SecretName  string        `name:"secret-name" xor:"routing" help:"Secrets Manager secret holding the routing table"`
	EventsURL   string        `name:"events-url" help:"PagerDuty Events API endpoint"`
	Timeout     time.Duration `help:"HTTP timeout for the Events API call"`
	DryRun      bool          `name:"dry-run" help:"Print the mapped request without sending it"`
	LogLevel    string        `name:"log-level" help:"Log level (debug, info, warn, error)"`
}

// Dependencies are swapped out in tests.
type Dependencies struct {
	Out     io.Writer
	Getenv  func(string) string
	Secrets func(ctx context.Context) (routing.SecretsAPI, error)
	Logger  *zap.Logger
}

// Run parses args, replays the event and returns the process exit code.
func Run(ctx context.Context, args []string, deps Dependencies) int {
	out := lo.Ternary[io.Writer](deps.Out != nil, deps.Out, os.Stdout)
	getenv := lo.Ternary(deps.Getenv != nil, deps.Getenv, os.Getenv)
	if deps.Secrets == nil {
		deps.Secrets = defaultSecrets
	}

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("alarm-replay"),
		kong.Description("Replay a CloudWatch alarm event through the PagerDuty forwarder."),
		kong.Writers(out, out),
		kong.Exit(func(int) {}))
	if err != nil {
		return exitWithError(out, err)
	}
	if _, err := parser.Parse(args); err != nil {
		return exitWithError(out, err)
	}

	cfg, err := resolveConfig(cli, getenv)
	if err != nil {
		return exitWithError(out, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger, err = common.NewLogger(cfg.LogLevel, zap.String("tool", "alarm-replay"))
		if err != nil {
			return exitWithError(out, err)
		}
		defer func() { _ = logger.Sync() }()
	}

	event, err := LoadEvent(cli.Event)
	if err != nil {
		return exitWithError(out, err)
	}

	source, err := routingSource(ctx, cli, cfg, deps)
	if err != nil {
		return exitWithError(out, err)
	}

	handler := forwarder.New(
		routing.NewResolver(routing.NewCache(source)),
		client.New(cfg.EventsURL, cfg.HTTPTimeout),
		logger)

	if cli.DryRun {
		req, err := handler.Prepare(ctx, event)
		if err != nil {
			return exitWithError(out, err)
		}
		return writeJSON(out, req)
	}

	result, err := handler.Handle(ctx, event)
	if err != nil {
		return exitWithError(out, err)
	}
	return writeJSON(out, result)
}

func resolveConfig(cli CLI, getenv func(string) string) (config.Config, error) {
	env, err := config.FromEnv(getenv)
	if err != nil {
		return config.Config{}, err
	}

	flags := config.Overrides{
		SecretName: lo.EmptyableToPtr(cli.SecretName),
		EventsURL:  lo.EmptyableToPtr(cli.EventsURL),
		LogLevel:   lo.EmptyableToPtr(cli.LogLevel),
	}
	if cli.Timeout > 0 {
		flags.HTTPTimeout = lo.ToPtr(cli.Timeout)
	}

	cfg := config.Resolve(env, flags)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func routingSource(ctx context.Context, cli CLI, cfg config.Config, deps Dependencies) (routing.Source, error) {
	if cli.RoutingFile != "" {
		return routing.FileSource{Path: cli.RoutingFile}, nil
	}
	secrets, err := deps.Secrets(ctx)
	if err != nil {
		return nil, err
	}
	return routing.NewSecretsManagerSource(secrets, cfg.SecretName), nil
}

func defaultSecrets(ctx context.Context) (routing.SecretsAPI, error) {
	awsCfg, err := common.LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return common.CreateSecretsClient(awsCfg), nil
}

// LoadEvent reads an inbound event from a JSON or YAML file.
func LoadEvent(path string) (types.InboundEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.InboundEvent{}, fmt.Errorf("failed to read event file: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return types.InboundEvent{}, types.InvalidEventError(fmt.Sprintf("cannot parse %s: %v", path, err))
	}

	var event types.InboundEvent
	if err := json.Unmarshal(jsonData, &event); err != nil {
		return types.InboundEvent{}, types.InvalidEventError(fmt.Sprintf("cannot decode %s: %v", path, err))
	}
	return event, nil
}

func writeJSON(out io.Writer, v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitWithError(out, err)
	}
	fmt.Fprintln(out, string(data))
	return 0
}

func exitWithError(out io.Writer, err error) int {
	fmt.Fprintf(out, "Error: %v\n", err)
	return 1
}
