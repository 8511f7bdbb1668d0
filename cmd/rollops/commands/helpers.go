package commands

import (
	"context"

	"github.com/systmms/rollops/internal/config"
	"github.com/systmms/rollops/internal/credential"
	"github.com/systmms/rollops/internal/gateway"
	"github.com/systmms/rollops/internal/secure"
)

// platformSession bundles a platform client with the credential backing it.
// Close destroys the credential buffer; call it as soon as the command is done
// talking to the platform.
type platformSession struct {
	Client *gateway.Client
	token  *secure.Token
}

func (s *platformSession) Close() {
	if s.token != nil {
		s.token.Destroy()
	}
}

// openPlatform resolves the configured credential and builds an authenticated
// platform client from the loaded definition.
func openPlatform(ctx context.Context, cfg *config.Config) (*platformSession, error) {
	def := cfg.Definition

	source, err := credential.New(def.Platform.Credential.SourceConfig())
	if err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	cfg.Logger.Debug("Resolving platform credential via %s source", source.Name())
	token, err := source.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	client := gateway.New(def.Platform.BaseURL, token)
	if def.Platform.MinActuatorVersion != "" {
		if err := client.SetMinActuatorVersion(def.Platform.MinActuatorVersion); err != nil {
			token.Destroy()
			return nil, err
		}
	}

	return &platformSession{Client: client, token: token}, nil
}
