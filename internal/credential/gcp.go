package credential

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/secure"
)

// GCPSource reads the bearer token from Google Secret Manager. Google
// credentials come from Application Default Credentials.
type GCPSource struct {
	resource string
	endpoint string
}

// NewGCPSource creates a Secret Manager source. resource is a full secret
// version name, e.g. projects/p/secrets/s/versions/latest.
func NewGCPSource(resource, endpoint string) *GCPSource {
	return &GCPSource{resource: resource, endpoint: endpoint}
}

// Name returns the source type.
func (s *GCPSource) Name() string {
	return "gcp"
}

// Validate checks the secret version reference.
func (s *GCPSource) Validate() error {
	if s.resource == "" {
		return rollerrors.ConfigError{
			Field:      "credential.resource",
			Message:    "GCP Secret Manager resource is required",
			Suggestion: "Set credential.resource to projects/{project}/secrets/{secret}/versions/latest",
		}
	}
	return nil
}

// Resolve fetches the token from Secret Manager.
func (s *GCPSource) Resolve(ctx context.Context) (*secure.Token, error) {
	var opts []option.ClientOption
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Secret Manager client: %w", err)
	}
	defer func() { _ = client.Close() }()

	res, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.resource,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, rollerrors.UserError{
				Message:    fmt.Sprintf("Secret version %s does not exist", s.resource),
				Suggestion: "Check the resource name; list versions with 'gcloud secrets versions list'",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("accessing secret version %s: %w", s.resource, err)
	}

	return secure.NewToken(res.GetPayload().GetData()), nil
}
