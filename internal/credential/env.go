package credential

import (
	"context"
	"fmt"
	"os"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/secure"
)

// EnvSource reads the bearer token from an environment variable.
type EnvSource struct {
	variable string
}

// NewEnvSource creates an environment-variable source. An empty variable
// name selects DefaultEnvVar.
func NewEnvSource(variable string) *EnvSource {
	if variable == "" {
		variable = DefaultEnvVar
	}
	return &EnvSource{variable: variable}
}

// Name returns the source type.
func (s *EnvSource) Name() string {
	return "env"
}

// Validate checks the variable name.
func (s *EnvSource) Validate() error {
	if s.variable == "" {
		return rollerrors.ConfigError{
			Field:   "credential.env",
			Message: "environment variable name is empty",
		}
	}
	return nil
}

// Resolve reads the token from the environment.
func (s *EnvSource) Resolve(_ context.Context) (*secure.Token, error) {
	value := os.Getenv(s.variable)
	if value == "" {
		return nil, rollerrors.UserError{
			Message:    fmt.Sprintf("No credential found in %s", s.variable),
			Suggestion: fmt.Sprintf("Export %s with a platform bearer token, or configure another credential source", s.variable),
		}
	}
	return secure.NewToken([]byte(value)), nil
}
