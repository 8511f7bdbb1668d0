package errors

import (
	"errors"
	"fmt"
	"strings"
)

// idempotentConflictMessage is the one batch-run failure the platform reports
// when tasks were already triggered by an earlier poll cycle. It is the only
// remote error that is ever downgraded from fatal.
const idempotentConflictMessage = "cannot create pending task runs because there are pending/running/done task runs"

// Sentinel errors returned by the gateway.
var (
	// ErrNotFound indicates the requested rollout does not exist on the platform.
	ErrNotFound = errors.New("rollout not found")

	// ErrEmptyResult indicates a success response that carried no payload.
	ErrEmptyResult = errors.New("platform returned an empty response body")
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// RemoteError is any non-success HTTP outcome from the change-management
// platform, carrying the status code and the message from the response body.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("platform returned HTTP %d: %s", e.Status, e.Message)
}

// TaskFailureError terminates the progression loop when one or more tasks in
// the current stage report FAILED.
type TaskFailureError struct {
	Stage string
	Tasks []string
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("stage %s has failed tasks: %s", e.Stage, strings.Join(e.Tasks, ", "))
}

// TargetNotFoundError is raised after the preview step when the requested
// target stage does not appear in the previewed topology. Available lists
// every stage environment the preview did contain, to aid correction.
type TargetNotFoundError struct {
	Target    string
	Available []string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target stage %q not found in the rollout preview; available stages: %s",
		e.Target, strings.Join(e.Available, ", "))
}

// UnsupportedVersionError indicates the platform actuator is below the
// minimum version this client can drive.
type UnsupportedVersionError struct {
	Got string
	Min string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("platform actuator version %s is below the minimum supported version %s", e.Got, e.Min)
}

// IsIdempotentConflict reports whether a batch-run failure is the recognized
// "task runs already exist" conflict. The controller swallows exactly this
// error and keeps polling; every other remote error is fatal.
func IsIdempotentConflict(err error) bool {
	if err == nil {
		return false
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		return strings.Contains(remote.Message, idempotentConflictMessage)
	}
	return strings.Contains(err.Error(), idempotentConflictMessage)
}
