// Package task defines the task and plan data model and the lifecycle
// state machine. A Task is one unit of requested code change tracked from
// intake through clarification, approval, isolated execution, testing and
// bounded auto-fix retry to a terminal state.
//
// Tasks are mutated only through orchestrator operations; every mutation
// appends to the task's capacity-bounded event log so the log is a complete
// audit trail independent of the final state.
package task

import (
	"time"

	"github.com/google/uuid"
)

// MaxEvents caps the per-task event log. Once the cap is reached the
// oldest entries are dropped first.
const MaxEvents = 200

// DefaultMaxAttempts is the attempt ceiling applied when intake does not
// specify one.
const DefaultMaxAttempts = 3

// Event types recorded in the task event log.
const (
	EventCreated     = "created"
	EventTransition  = "transition"
	EventApproval    = "approval"
	EventWorkspace   = "workspace"
	EventPlanUpdated = "plan_updated"
	EventError       = "error"
	EventNote        = "note"
)

// Source identifies where a task came from. The ids are opaque to the
// lifecycle engine; channel adapters own their meaning.
type Source struct {
	ChannelID      string `json:"channel_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// RepoContext describes the repository a task operates on. WorkspacePath
// and WorkspaceBranch stay empty until the workspace is provisioned.
type RepoContext struct {
	Name            string `json:"name,omitempty"`
	BaseBranch      string `json:"base_branch,omitempty"`
	WorkspacePath   string `json:"workspace_path,omitempty"`
	WorkspaceBranch string `json:"workspace_branch,omitempty"`
}

// Approval records the human gate state for a task.
type Approval struct {
	Required   bool       `json:"required"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// Satisfied reports whether the approval gate is open: either approval is
// not required, or an approver has been recorded.
func (a Approval) Satisfied() bool {
	return !a.Required || a.ApprovedBy != ""
}

// TestResult is the outcome of one TEST step execution.
type TestResult struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	LogRef     string `json:"log_ref,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Passed     bool   `json:"passed"`
}

// Artifacts collects the references produced across a task's lifecycle.
type Artifacts struct {
	ClarifySummary string       `json:"clarify_summary,omitempty"`
	DiffRef        string       `json:"diff_ref,omitempty"`
	TestReportRef  string       `json:"test_report_ref,omitempty"`
	ChangedFiles   []string     `json:"changed_files,omitempty"`
	TestResults    []TestResult `json:"test_results,omitempty"`
}

// Event is one entry in a task's append-only event log.
type Event struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	From    State             `json:"from,omitempty"`
	To      State             `json:"to,omitempty"`
	Message string            `json:"message,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
	At      time.Time         `json:"at"`
}

// Task is one unit of requested code change tracked through its full
// lifecycle. The ID is immutable and unique; the state changes only through
// AttemptTransition; UpdatedAt is monotonically non-decreasing.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Source Source      `json:"source"`
	Repo   RepoContext `json:"repo"`

	State    State    `json:"state"`
	Approval Approval `json:"approval"`
	Plan     *Plan    `json:"plan,omitempty"`

	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`

	Artifacts Artifacts `json:"artifacts"`
	Events    []Event   `json:"events,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a NEW task with a generated id and timestamps.
func New(title, description string, source Source, repo RepoContext) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Source:      source,
		Repo:        repo,
		State:       StateNew,
		Approval:    Approval{Required: true},
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.AppendEvent(Event{Type: EventCreated, Message: title})
	return t
}

// Touch advances UpdatedAt, never letting it move backwards even under
// clock regression.
func (t *Task) Touch() {
	now := time.Now().UTC()
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
		return
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Nanosecond)
}

// AppendEvent appends an event to the task's log, filling in id and
// timestamp when absent and dropping the oldest entries past MaxEvents.
func (t *Task) AppendEvent(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	t.Events = append(t.Events, ev)
	if len(t.Events) > MaxEvents {
		t.Events = t.Events[len(t.Events)-MaxEvents:]
	}
}

// RecordError stores err as the task's last error and appends an error
// event. It does not change state.
func (t *Task) RecordError(err error) {
	if err == nil {
		return
	}
	t.LastError = err.Error()
	t.AppendEvent(Event{Type: EventError, Message: err.Error()})
	t.Touch()
}

// AttemptsExhausted reports whether the task has consumed its attempt
// ceiling.
func (t *Task) AttemptsExhausted() bool {
	return t.Attempt >= t.MaxAttempts
}
