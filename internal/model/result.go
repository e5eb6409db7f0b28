package model

import "time"

// Status is the health level carried in a result's "status" field.
type Status string

// Check status constants.
const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
	StatusUnknown  Status = "UNKNOWN"
)

// Result field names the runner reads or writes itself.
const (
	FieldStatus  = "status"
	FieldInfo    = "info"
	FieldID      = "id"
	FieldResults = "results"
)

// Result is a structured check record. Beyond status and info it is opaque.
type Result map[string]any

// NewResult builds a record with the given status and info.
func NewResult(status Status, info string) Result {
	r := Result{FieldStatus: string(status)}
	if info != "" {
		r[FieldInfo] = info
	}
	return r
}

// Status returns the record's status, or "" when it has none.
func (r Result) Status() Status {
	switch v := r[FieldStatus].(type) {
	case string:
		return Status(v)
	case Status:
		return v
	default:
		return ""
	}
}

// Info returns the record's info string, or "" when it has none.
func (r Result) Info() string {
	s, _ := r[FieldInfo].(string)
	return s
}

// Task is one check in a batch. Its position in the batch is its identity.
type Task struct {
	ID   string         `json:"id,omitempty" yaml:"id"`
	Kind string         `json:"kind" yaml:"kind"`
	Args map[string]any `json:"args,omitempty" yaml:"args"`
}

// TaskState is the lifecycle state of a task within one run.
type TaskState string

// Task state constants.
const (
	TaskPending    TaskState = "pending"
	TaskDispatched TaskState = "dispatched"
	TaskCompleted  TaskState = "completed"
	TaskCrashed    TaskState = "crashed"
	TaskKilled     TaskState = "killed"
	TaskNotStarted TaskState = "not_started"
)

// Terminal reports whether no further transition is possible from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCrashed, TaskKilled, TaskNotStarted:
		return true
	default:
		return false
	}
}

// validTaskTransitions maps each state to the set of states it may move to.
var validTaskTransitions = map[TaskState]map[TaskState]bool{
	TaskPending: {
		TaskDispatched: true,
		TaskNotStarted: true,
	},
	TaskDispatched: {
		TaskCompleted: true,
		TaskCrashed:   true,
		TaskKilled:    true,
	},
}

// ValidTaskTransition reports whether moving a task from one state to another is allowed.
func ValidTaskTransition(from, to TaskState) bool {
	targets, ok := validTaskTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Run status constants used for persisted runs.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunTimedOut  = "timed_out"
	RunFailed    = "failed"
)

// validRunTransitions maps each run state to the states it may move to.
var validRunTransitions = map[string]map[string]bool{
	RunPending: {
		RunRunning: true,
		RunFailed:  true,
	},
	RunRunning: {
		RunCompleted: true,
		RunTimedOut:  true,
		RunFailed:    true,
	},
}

// ValidRunTransition reports whether a run may move from one state to another.
func ValidRunTransition(from, to string) bool {
	return validRunTransitions[from][to]
}

// IsTerminalRunState reports whether a run in state s is finished.
func IsTerminalRunState(s string) bool {
	return s == RunCompleted || s == RunTimedOut || s == RunFailed
}

// Run is one persisted invocation of a checker.
type Run struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	Status     Status     `json:"status,omitempty"`
	TaskCount  int        `json:"task_count"`
	MaxProcs   int        `json:"max_procs"`
	TimeoutS   int        `json:"timeout_s"`
	Result     Result     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskRecord is the persisted terminal outcome of one task within a run.
type TaskRecord struct {
	RunID  string    `json:"run_id"`
	Index  int       `json:"index"`
	TaskID string    `json:"task_id,omitempty"`
	Kind   string    `json:"kind"`
	State  TaskState `json:"state"`
	Status Status    `json:"status"`
	Info   string    `json:"info,omitempty"`
	Result Result    `json:"result"`
}
