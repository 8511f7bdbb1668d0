// Package config loads and validates the rollops configuration file. The
// file is YAML, checked against an embedded JSON schema first so type and
// shape mistakes surface with a field path, then semantically validated
// before anything touches the network.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/systmms/rollops/internal/credential"
	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/logging"
)

// DefaultFileName is looked up in the working directory when --config is not
// given.
const DefaultFileName = "rollops.yaml"

// DefaultPollInterval paces the progression loop between status polls.
const DefaultPollInterval = 5 * time.Second

// EnvBaseURL overrides platform.baseUrl when set.
const EnvBaseURL = "ROLLOPS_BASE_URL"

// planRefPattern matches a fully qualified delivery plan reference.
var planRefPattern = regexp.MustCompile(`^projects/([^/]+)/plans/([^/]+)$`)

// Config carries everything commands need: the parsed definition plus the
// runtime collaborators wired in by the CLI entrypoint.
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition is the content of the configuration file.
type Definition struct {
	Version  int            `yaml:"version"`
	Platform PlatformConfig `yaml:"platform"`
	Rollout  RolloutConfig  `yaml:"rollout"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PlatformConfig describes the change-management platform endpoint.
type PlatformConfig struct {
	BaseURL            string           `yaml:"baseUrl"`
	MinActuatorVersion string           `yaml:"minActuatorVersion"`
	Credential         CredentialConfig `yaml:"credential"`
}

// CredentialConfig selects the bearer-token source. See the credential
// package for the per-source fields.
type CredentialConfig struct {
	Source   string `yaml:"source"`
	Env      string `yaml:"env"`
	Service  string `yaml:"service"`
	Account  string `yaml:"account"`
	SecretID string `yaml:"secretId"`
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Resource string `yaml:"resource"`
	Endpoint string `yaml:"endpoint"`
}

// SourceConfig converts the YAML block into the credential package's config.
func (c CredentialConfig) SourceConfig() credential.Config {
	return credential.Config{
		Source:   c.Source,
		Env:      c.Env,
		Service:  c.Service,
		Account:  c.Account,
		SecretID: c.SecretID,
		Region:   c.Region,
		Profile:  c.Profile,
		Resource: c.Resource,
		Endpoint: c.Endpoint,
	}
}

// RolloutConfig describes the rollout to drive.
type RolloutConfig struct {
	Plan         string   `yaml:"plan"`
	Target       string   `yaml:"target"`
	Title        string   `yaml:"title"`
	Reason       string   `yaml:"reason"`
	PollInterval Duration `yaml:"pollInterval"`
}

// MetricsConfig controls the optional Prometheus endpoint. A zero port
// disables it.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// Duration parses YAML strings like "2s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return rollerrors.ConfigError{
			Field:      "rollout.pollInterval",
			Value:      raw,
			Message:    "not a valid duration",
			Suggestion: "Use Go duration syntax, e.g. 2s or 500ms",
		}
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and validates the file at c.Path, populating c.Definition.
func (c *Config) Load() error {
	loaded, err := Load(c.Path, c.Logger)
	if err != nil {
		return err
	}
	c.Path = loaded.Path
	c.Definition = loaded.Definition
	return nil
}

// Load reads, schema-checks and validates the configuration file.
func Load(path string, logger *logging.Logger) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rollerrors.UserError{
				Message:    fmt.Sprintf("Configuration file not found: %s", path),
				Suggestion: "Create rollops.yaml in the working directory or pass --config",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return &Config{Path: path, Logger: logger, Definition: def}, nil
}

// Parse validates raw YAML and returns the definition with environment
// overrides applied.
func Parse(data []byte) (*Definition, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, rollerrors.ConfigError{
			Message:    "file is not valid YAML",
			Suggestion: err.Error(),
		}
	}

	def.applyEnvOverrides()

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) applyEnvOverrides() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		d.Platform.BaseURL = v
	}
}

// Validate performs the semantic checks the schema cannot express.
func (d *Definition) Validate() error {
	if d.Version != 1 {
		return rollerrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set version: 1",
		}
	}

	parsed, err := url.Parse(d.Platform.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return rollerrors.ConfigError{
			Field:      "platform.baseUrl",
			Value:      d.Platform.BaseURL,
			Message:    "must be an http(s) URL",
			Suggestion: "Example: https://rollouts.example.com",
		}
	}

	if !planRefPattern.MatchString(d.Rollout.Plan) {
		return rollerrors.ConfigError{
			Field:      "rollout.plan",
			Value:      d.Rollout.Plan,
			Message:    "must be a fully qualified plan reference",
			Suggestion: "Example: projects/my-project/plans/web-rollout",
		}
	}

	if d.Rollout.PollInterval < 0 {
		return rollerrors.ConfigError{
			Field:   "rollout.pollInterval",
			Value:   time.Duration(d.Rollout.PollInterval).String(),
			Message: "must not be negative",
		}
	}

	return nil
}

// Project derives the project reference from the plan, e.g.
// projects/my-project/plans/web yields projects/my-project.
func (d *Definition) Project() string {
	m := planRefPattern.FindStringSubmatch(d.Rollout.Plan)
	if m == nil {
		return ""
	}
	return "projects/" + m[1]
}

// PollEvery returns the configured poll interval, or the default when the
// file leaves it unset.
func (d *Definition) PollEvery() time.Duration {
	if d.Rollout.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(d.Rollout.PollInterval)
}

// validateSchema checks the YAML document against the embedded JSON schema.
// YAML is converted to JSON first since the validator speaks JSON only.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rollerrors.ConfigError{
			Message:    "file is not valid YAML",
			Suggestion: err.Error(),
		}
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting configuration to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("running schema validation: %w", err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		return rollerrors.ConfigError{
			Field:   first.Field(),
			Message: first.Description(),
		}
	}
	return nil
}
