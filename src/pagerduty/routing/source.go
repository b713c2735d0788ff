// Package routing loads the PagerDuty routing table from a secret store and
// resolves service keys against it.
package routing

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"incidentbridge/src/pagerduty/types"
)

// Source returns the raw routing secret payload.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// SecretsAPI is the subset of the Secrets Manager client the resolver needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerSource struct {
	client     SecretsAPI
	secretName string
}

func NewSecretsManagerSource(client SecretsAPI, secretName string) *SecretsManagerSource {
	return &SecretsManagerSource{client: client, secretName: secretName}
}

func (s *SecretsManagerSource) Name() string {
	return s.secretName
}

func (s *SecretsManagerSource) Fetch(ctx context.Context) ([]byte, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, types.SecretStoreError(s.secretName, err)
	}

	switch {
	case result.SecretString != nil:
		return []byte(aws.ToString(result.SecretString)), nil
	case len(result.SecretBinary) > 0:
		return result.SecretBinary, nil
	default:
		return nil, types.MalformedSecretError(fmt.Sprintf("secret %q has no value", s.secretName), nil)
	}
}

// FileSource reads the routing payload from a local JSON file. It backs the
// replay tool so it can run without AWS credentials.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string {
	return f.Path
}

func (f FileSource) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, types.SecretStoreError(f.Path, err)
	}
	return data, nil
}

// StaticSource serves a fixed payload.
type StaticSource []byte

func (s StaticSource) Name() string {
	return "static"
}

func (s StaticSource) Fetch(context.Context) ([]byte, error) {
	return s, nil
}
