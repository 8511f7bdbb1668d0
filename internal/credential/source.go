// Package credential resolves the platform bearer token from one of several
// backing stores. Exactly one source is active per invocation, selected by
// configuration; every source hands the token over as a secure.Token so the
// plaintext never lingers in process memory.
package credential

import (
	"context"
	"fmt"

	"github.com/systmms/rollops/internal/secure"
)

// DefaultEnvVar is the environment variable consulted when no credential
// source is configured.
const DefaultEnvVar = "ROLLOPS_TOKEN"

// Source provides the platform bearer token.
type Source interface {
	// Name identifies the source type for logs and doctor output.
	Name() string

	// Validate checks the source configuration without touching the backing
	// store.
	Validate() error

	// Resolve fetches the token. Called once per invocation, before any
	// platform request.
	Resolve(ctx context.Context) (*secure.Token, error)
}

// Config selects and parameterizes a credential source.
type Config struct {
	// Source is one of env, keyring, aws, gcp. Empty selects env.
	Source string

	// Env source: variable name, DefaultEnvVar when empty.
	Env string

	// Keyring source: service and account the token is stored under.
	Service string
	Account string

	// AWS source: Secrets Manager secret plus optional region/profile.
	SecretID string
	Region   string
	Profile  string

	// GCP source: full secret version resource, with optional endpoint
	// override for private access.
	Resource string
	Endpoint string
}

// New creates the configured credential source.
func New(cfg Config) (Source, error) {
	switch cfg.Source {
	case "", "env":
		return NewEnvSource(cfg.Env), nil
	case "keyring":
		return NewKeyringSource(cfg.Service, cfg.Account), nil
	case "aws":
		return NewAWSSource(cfg.SecretID, cfg.Region, cfg.Profile), nil
	case "gcp":
		return NewGCPSource(cfg.Resource, cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q (expected env, keyring, aws or gcp)", cfg.Source)
	}
}
