package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/secure"
)

// DefaultTimeout bounds a single request round trip. The progression loop
// itself carries no overall deadline.
const DefaultTimeout = 30 * time.Second

// DefaultMinActuatorVersion is the compatibility floor for the platform
// actuator. Rollouts driven against older actuators mis-handle batch-cancel
// of pending runs, so the client refuses to start.
const DefaultMinActuatorVersion = "1.4.0"

// HTTPClient is the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the change-management platform over authenticated JSON/HTTP.
// It owns request/response mapping and error classification; it holds no
// rollout state of its own.
type Client struct {
	baseURL    string
	token      *secure.Token
	client     HTTPClient
	minVersion *semver.Version
}

// New creates a platform client. The token is revealed per request and never
// retained in plain form.
func New(baseURL string, token *secure.Token) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		minVersion: semver.New(DefaultMinActuatorVersion),
	}
}

// SetHTTPClient sets a custom HTTP client for testing.
func (c *Client) SetHTTPClient(client HTTPClient) {
	c.client = client
}

// SetMinActuatorVersion overrides the default compatibility floor.
func (c *Client) SetMinActuatorVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("invalid minimum actuator version %q: %w", version, err)
	}
	c.minVersion = v
	return nil
}

// CreateOptions modifies rollout creation.
type CreateOptions struct {
	// ValidateOnly requests a non-persisted preview carrying the full stage
	// topology. The platform assigns no name and stores nothing.
	ValidateOnly bool

	// Target, when set, bounds materialization at the named stage (an
	// environment identifier). Used to instantiate one stage at a time.
	Target string
}

// RolloutSpec is the operator-supplied part of a rollout.
type RolloutSpec struct {
	Plan  string `json:"plan"`
	Title string `json:"title,omitempty"`
}

// GetRollout fetches the current state of a rollout by its platform-assigned
// name. Returns errors.ErrNotFound when the rollout does not exist or the
// response carries no body.
func (c *Client) GetRollout(ctx context.Context, name string) (*Rollout, error) {
	var rollout Rollout
	found, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/"+name, nil, &rollout)
	if err != nil {
		var remote *rollerrors.RemoteError
		if stderrors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return nil, fmt.Errorf("fetching rollout %s: %w", name, rollerrors.ErrNotFound)
		}
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("fetching rollout %s: %w", name, rollerrors.ErrNotFound)
	}
	return &rollout, nil
}

// CreateRollout creates (or, with ValidateOnly, previews) a rollout under the
// given project. A success response with no payload is an error: callers need
// the returned topology or name.
func (c *Client) CreateRollout(ctx context.Context, project string, spec RolloutSpec, opts CreateOptions) (*Rollout, error) {
	endpoint := c.baseURL + "/v1/" + project + "/rollouts"

	query := url.Values{}
	if opts.ValidateOnly {
		query.Set("validateOnly", "true")
	}
	if opts.Target != "" {
		query.Set("target", opts.Target)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var rollout Rollout
	found, err := c.do(ctx, http.MethodPost, endpoint, spec, &rollout)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("creating rollout for %s: %w", spec.Plan, rollerrors.ErrEmptyResult)
	}
	return &rollout, nil
}

// BatchRunTasks requests execution of the given NOT_STARTED tasks in a stage.
// The platform reports a conflict when runs already exist for them; callers
// classify that one message via errors.IsIdempotentConflict.
func (c *Client) BatchRunTasks(ctx context.Context, stageName string, taskNames []string, reason string) error {
	body := struct {
		Tasks  []string `json:"tasks"`
		Reason string   `json:"reason,omitempty"`
	}{
		Tasks:  taskNames,
		Reason: reason,
	}

	_, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/"+stageName+"/tasks:batchRun", body, nil)
	return err
}

// BatchCancelTaskRuns requests cancellation of the given task runs under one
// stage of a rollout. Best-effort by contract: the caller logs failures
// instead of escalating them.
func (c *Client) BatchCancelTaskRuns(ctx context.Context, rolloutName, stageID string, taskRunNames []string) error {
	body := struct {
		TaskRuns []string `json:"taskRuns"`
	}{
		TaskRuns: taskRunNames,
	}

	endpoint := c.baseURL + "/v1/" + rolloutName + "/" + stageID + "/tasks/-/taskRuns:batchCancel"
	_, err := c.do(ctx, http.MethodPost, endpoint, body, nil)
	return err
}

// ListTaskRuns returns every task run recorded under the rollout, across all
// stages and tasks.
func (c *Client) ListTaskRuns(ctx context.Context, rolloutName string) ([]TaskRun, error) {
	var response struct {
		TaskRuns []TaskRun `json:"taskRuns"`
	}

	endpoint := c.baseURL + "/v1/" + rolloutName + "/stages/-/tasks/-/taskRuns"
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.TaskRuns, nil
}

// ActuatorVersion fetches the platform actuator version and checks it against
// the compatibility floor. This is a startup guard, not part of the
// progression loop.
func (c *Client) ActuatorVersion(ctx context.Context) (*semver.Version, error) {
	var response struct {
		Version string `json:"version"`
	}

	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/version", nil, &response); err != nil {
		return nil, err
	}

	version, err := semver.NewVersion(strings.TrimPrefix(response.Version, "v"))
	if err != nil {
		return nil, fmt.Errorf("platform reported unparsable version %q: %w", response.Version, err)
	}

	if version.LessThan(*c.minVersion) {
		return nil, &rollerrors.UnsupportedVersionError{
			Got: version.String(),
			Min: c.minVersion.String(),
		}
	}
	return version, nil
}

// do performs one authenticated JSON round trip. It returns found=false when
// a success response carried no payload to decode into out. Non-success
// statuses map to *errors.RemoteError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) (found bool, err error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != nil {
		plain, done, err := c.token.Reveal()
		if err != nil {
			return false, fmt.Errorf("failed to read credential: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+plain)
		done()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return false, &rollerrors.RemoteError{
			Status:  resp.StatusCode,
			Message: extractMessage(raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

// extractMessage pulls a human-readable message out of an error body. The
// platform wraps errors as {"error": {"message": ...}} but plain {"message"}
// and raw text bodies occur behind proxies.
func extractMessage(raw []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped.Error.Message != "" {
			return wrapped.Error.Message
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
