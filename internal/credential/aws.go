package credential

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/secure"
)

// AWSSource reads the bearer token from AWS Secrets Manager. Credentials for
// AWS itself come from the default chain (env, shared config, IAM role).
type AWSSource struct {
	secretID string
	region   string
	profile  string
}

// NewAWSSource creates a Secrets Manager source.
func NewAWSSource(secretID, region, profile string) *AWSSource {
	return &AWSSource{secretID: secretID, region: region, profile: profile}
}

// Name returns the source type.
func (s *AWSSource) Name() string {
	return "aws"
}

// Validate checks the secret reference.
func (s *AWSSource) Validate() error {
	if s.secretID == "" {
		return rollerrors.ConfigError{
			Field:      "credential.secretId",
			Message:    "AWS Secrets Manager secret id is required",
			Suggestion: "Set credential.secretId to the secret name or ARN holding the platform token",
		}
	}
	return nil
}

// Resolve fetches the token from Secrets Manager.
func (s *AWSSource) Resolve(ctx context.Context) (*secure.Token, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if s.region != "" {
		optFns = append(optFns, awsconfig.WithRegion(s.region))
	}
	if s.profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(s.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return nil, rollerrors.UserError{
			Message:    fmt.Sprintf("Failed to read secret %s from AWS Secrets Manager", s.secretID),
			Suggestion: "Check the secret id, AWS credentials and secretsmanager:GetSecretValue permission",
			Err:        err,
		}
	}

	if out.SecretString != nil {
		return secure.NewToken([]byte(aws.ToString(out.SecretString))), nil
	}
	if len(out.SecretBinary) > 0 {
		return secure.NewToken(out.SecretBinary), nil
	}
	return nil, fmt.Errorf("secret %s has no value", s.secretID)
}
