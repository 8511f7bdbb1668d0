package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/secure"
)

// defaultKeyringService is the OS keychain service the token is stored under
// when none is configured.
const defaultKeyringService = "rollops"

// KeyringSource reads the bearer token from the OS keychain (macOS Keychain,
// Linux Secret Service, Windows Credential Manager).
type KeyringSource struct {
	service string
	account string
}

// NewKeyringSource creates a keychain source.
func NewKeyringSource(service, account string) *KeyringSource {
	if service == "" {
		service = defaultKeyringService
	}
	return &KeyringSource{service: service, account: account}
}

// Name returns the source type.
func (s *KeyringSource) Name() string {
	return "keyring"
}

// Validate checks the keychain coordinates.
func (s *KeyringSource) Validate() error {
	if s.account == "" {
		return rollerrors.ConfigError{
			Field:      "credential.account",
			Message:    "keyring account is required",
			Suggestion: fmt.Sprintf("Store the token first: secret-tool or 'security add-generic-password' under service '%s'", s.service),
		}
	}
	return nil
}

// Resolve reads the token from the keychain.
func (s *KeyringSource) Resolve(_ context.Context) (*secure.Token, error) {
	value, err := keyring.Get(s.service, s.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, rollerrors.UserError{
				Message:    fmt.Sprintf("No credential stored in the keyring under %s/%s", s.service, s.account),
				Suggestion: "Store the platform token in the OS keychain, or switch the credential source to env",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("reading keyring entry %s/%s: %w", s.service, s.account, err)
	}
	return secure.NewToken([]byte(value)), nil
}
