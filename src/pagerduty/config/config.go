// Package config resolves forwarder settings from explicit overrides, the
// environment and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultSecretName  = "pagerduty/alarm-routing"
	DefaultEventsURL   = "https://events.pagerduty.com/v2/enqueue"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultLogLevel    = "info"
)

const (
	EnvSecretName      = "PAGERDUTY_SECRET_NAME"
	EnvEventsURL       = "PAGERDUTY_EVENTS_URL"
	EnvHTTPTimeout     = "PAGERDUTY_HTTP_TIMEOUT"
	EnvLedgerTable     = "INCIDENT_LEDGER_TABLE"
	EnvFailureTopicARN = "FAILURE_TOPIC_ARN"
	EnvLogLevel        = "LOG_LEVEL"
	EnvTracing         = "XRAY_TRACING"
)

// Config is a fully resolved configuration. Empty LedgerTable or
// FailureTopicARN disables that integration.
type Config struct {
	SecretName      string
	EventsURL       string
	HTTPTimeout     time.Duration
	LedgerTable     string
	FailureTopicARN string
	LogLevel        string
	Tracing         bool
}

// Overrides holds one configuration layer. Nil fields are unset and fall
// through to the next layer.
type Overrides struct {
	SecretName      *string
	EventsURL       *string
	HTTPTimeout     *time.Duration
	LedgerTable     *string
	FailureTopicARN *string
	LogLevel        *string
	Tracing         *bool
}

func Defaults() Config {
	return Config{
		SecretName:  DefaultSecretName,
		EventsURL:   DefaultEventsURL,
		HTTPTimeout: DefaultHTTPTimeout,
		LogLevel:    DefaultLogLevel,
	}
}

// FromEnv reads the environment layer. Empty variables count as unset.
func FromEnv(getenv func(string) string) (Overrides, error) {
	var o Overrides
	o.SecretName = envString(getenv, EnvSecretName)
	o.EventsURL = envString(getenv, EnvEventsURL)
	o.LedgerTable = envString(getenv, EnvLedgerTable)
	o.FailureTopicARN = envString(getenv, EnvFailureTopicARN)
	o.LogLevel = envString(getenv, EnvLogLevel)

	if v := getenv(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Overrides{}, fmt.Errorf("invalid %s %q: %w", EnvHTTPTimeout, v, err)
		}
		o.HTTPTimeout = &d
	}
	if v := getenv(EnvTracing); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Overrides{}, fmt.Errorf("invalid %s %q: %w", EnvTracing, v, err)
		}
		o.Tracing = &b
	}
	return o, nil
}

// Resolve applies layers over the defaults. Later layers take precedence,
// so callers pass the environment first and explicit overrides last.
func Resolve(layers ...Overrides) Config {
	cfg := Defaults()
	for _, l := range layers {
		cfg.SecretName = pick(l.SecretName, cfg.SecretName)
		cfg.EventsURL = pick(l.EventsURL, cfg.EventsURL)
		cfg.HTTPTimeout = pick(l.HTTPTimeout, cfg.HTTPTimeout)
		cfg.LedgerTable = pick(l.LedgerTable, cfg.LedgerTable)
		cfg.FailureTopicARN = pick(l.FailureTopicARN, cfg.FailureTopicARN)
		cfg.LogLevel = pick(l.LogLevel, cfg.LogLevel)
		cfg.Tracing = pick(l.Tracing, cfg.Tracing)
	}
	return cfg
}

// Load resolves the process environment with optional explicit overrides on top.
func Load(explicit ...Overrides) (Config, error) {
	env, err := FromEnv(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	cfg := Resolve(append([]Overrides{env}, explicit...)...)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SecretName == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	if c.EventsURL == "" {
		return fmt.Errorf("events url cannot be empty")
	}
	u, err := url.Parse(c.EventsURL)
	if err != nil {
		return fmt.Errorf("invalid events url %q: %w", c.EventsURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("events url %q must be http or https", c.EventsURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

func (c Config) LedgerEnabled() bool {
	return c.LedgerTable != ""
}

func (c Config) FailureNotificationsEnabled() bool {
	return c.FailureTopicARN != ""
}

func envString(getenv func(string) string, key string) *string {
	return lo.EmptyableToPtr(getenv(key))
}

func pick[T any](override *T, current T) T {
	return lo.FromPtrOr(override, current)
}
