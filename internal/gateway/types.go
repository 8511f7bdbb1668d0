package gateway

// Typed schemas for the platform's JSON payloads. Responses are decoded and
// validated once at this boundary; everything downstream works with these
// structs rather than free-form maps.

// Task statuses reported by the platform.
const (
	TaskNotStarted = "NOT_STARTED"
	TaskPending    = "PENDING"
	TaskRunning    = "RUNNING"
	TaskDone       = "DONE"
	TaskSkipped    = "SKIPPED"
	TaskFailed     = "FAILED"
	TaskCanceled   = "CANCELED"
)

// TaskRun statuses reported by the platform.
const (
	RunPending  = "PENDING"
	RunRunning  = "RUNNING"
	RunDone     = "DONE"
	RunFailed   = "FAILED"
	RunCanceled = "CANCELED"
)

// Rollout is the mutable execution of a plan. A previewed rollout carries the
// full stage topology but no durable name; the created rollout starts with no
// stages and grows them as progression advances.
type Rollout struct {
	// Name is assigned by the platform on creation and is empty on previews.
	Name string `json:"name,omitempty"`

	// Plan is the back-reference to the immutable plan, of the form
	// projects/{project}/plans/{plan}.
	Plan string `json:"plan"`

	// Title is an optional operator-supplied label.
	Title string `json:"title,omitempty"`

	// Stages is the ordered pipeline. A stage's index in this list is its
	// advancement index and never changes between preview and materialization.
	Stages []Stage `json:"stages,omitempty"`
}

// Stage is one pipeline step bound to a target environment.
type Stage struct {
	// Name is empty until the platform instantiates the stage.
	Name string `json:"name,omitempty"`

	// Environment is the stable target identifier, e.g. environments/prod.
	Environment string `json:"environment"`

	Tasks []Task `json:"tasks,omitempty"`
}

// Task is a unit of work within a stage.
type Task struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TaskRun is the platform's execution record for a task attempt. Task runs
// are created by the platform when a task is run, never by this client.
type TaskRun struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Active reports whether the run can still be canceled.
func (r TaskRun) Active() bool {
	return r.Status == RunPending || r.Status == RunRunning
}
