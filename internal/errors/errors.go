// Package errors provides centralized error definitions and error handling
// utilities for the taskpilot codebase. It defines the lifecycle error
// taxonomy, error constructors with context wrapping, and classification
// helpers the orchestrator uses to decide retriability.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - TransitionError: an illegal or premature lifecycle state change
//   - PlanError: structural validation failure of a task's plan
//   - PolicyError: a changed-file set breaching plan constraints
//   - WorkspaceError: a git working-tree operation failed
//   - EngineError: the external execution engine failed
//
// Semantic errors represent common conditions:
//   - NotFoundError: a task record could not be found
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewTransitionError(from, to, "diff artifact missing")
//	err := errors.NewWorkspaceError("worktree add failed", cause).WithPath(p)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTaskNotFound) { ... }
//
//	var pe *errors.PolicyError
//	if errors.As(err, &pe) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task and store sentinel errors
var (
	// ErrTaskNotFound indicates that a task record could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrTaskCorrupted indicates that a persisted task record cannot be decoded.
	ErrTaskCorrupted = New("task record corrupted")
	// ErrAttemptsExhausted indicates the task has consumed its attempt ceiling.
	ErrAttemptsExhausted = New("attempt ceiling reached")
)

// Workspace sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorkspaceExists indicates that a workspace path is already in use.
	ErrWorkspaceExists = New("workspace already exists")
	// ErrBranchNotFound indicates that a branch could not be resolved.
	ErrBranchNotFound = New("branch not found")
)

// Plan sentinel errors
var (
	// ErrPlanMissing indicates a task has no plan attached.
	ErrPlanMissing = New("plan not attached")
	// ErrPlanInvalid indicates a plan failed structural validation.
	ErrPlanInvalid = New("plan is invalid")
)

// -----------------------------------------------------------------------------
// TransitionError
// -----------------------------------------------------------------------------

// TransitionError reports an illegal or premature lifecycle state change.
// It is a caller bug when raised by table membership, and a readiness
// failure when raised by a guard; Guard carries the failed precondition.
type TransitionError struct {
	From  string
	To    string
	Guard string // failed precondition, empty for table violations
}

// NewTransitionError creates a TransitionError. guard names the failed
// readiness precondition; pass "" for a plain table violation.
func NewTransitionError(from, to, guard string) *TransitionError {
	return &TransitionError{From: from, To: to, Guard: guard}
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	if e.Guard != "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Guard)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Is reports whether target is also a TransitionError.
func (e *TransitionError) Is(target error) bool {
	_, ok := target.(*TransitionError)
	return ok
}

// -----------------------------------------------------------------------------
// PlanError
// -----------------------------------------------------------------------------

// PlanError reports a structural plan validation failure. It is never
// retriable within the current attempt.
type PlanError struct {
	TaskID   string
	Problems []string
}

// NewPlanError creates a PlanError from the list of validation problems.
func NewPlanError(taskID string, problems []string) *PlanError {
	return &PlanError{TaskID: taskID, Problems: problems}
}

// Error returns the formatted error message.
func (e *PlanError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("plan validation failed [task=%s]", e.TaskID)
	}
	return fmt.Sprintf("plan validation failed [task=%s]: %s", e.TaskID, strings.Join(e.Problems, "; "))
}

// Is reports whether target matches this error.
func (e *PlanError) Is(target error) bool {
	if _, ok := target.(*PlanError); ok {
		return true
	}
	return target == ErrPlanInvalid
}

// -----------------------------------------------------------------------------
// PolicyError
// -----------------------------------------------------------------------------

// PolicyError reports that a changed-file set breached the plan's
// file-change constraints. It is never retriable within the current attempt.
type PolicyError struct {
	// Path is the offending file, empty for count violations.
	Path string
	// Rule is the glob or limit that was breached.
	Rule string
	// Reason is a human-readable description of the violation.
	Reason string
}

// NewPolicyError creates a PolicyError.
func NewPolicyError(path, rule, reason string) *PolicyError {
	return &PolicyError{Path: path, Rule: rule, Reason: reason}
}

// Error returns the formatted error message.
func (e *PolicyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("policy violation [path=%s, rule=%s]: %s", e.Path, e.Rule, e.Reason)
	}
	return fmt.Sprintf("policy violation [rule=%s]: %s", e.Rule, e.Reason)
}

// Is reports whether target is also a PolicyError.
func (e *PolicyError) Is(target error) bool {
	_, ok := target.(*PolicyError)
	return ok
}

// -----------------------------------------------------------------------------
// WorkspaceError
// -----------------------------------------------------------------------------

// WorkspaceError represents a failed git working-tree operation. The
// underlying tool diagnostic is preserved in Output. Usually retriable
// after operator intervention, never retried implicitly.
type WorkspaceError struct {
	message string
	cause   error
	Path    string
	Output  string
}

// NewWorkspaceError creates a new WorkspaceError.
func NewWorkspaceError(message string, cause error) *WorkspaceError {
	return &WorkspaceError{message: message, cause: cause}
}

// WithPath adds the workspace path to the error context.
func (e *WorkspaceError) WithPath(path string) *WorkspaceError {
	e.Path = path
	return e
}

// WithOutput attaches the version-control tool's diagnostic output.
func (e *WorkspaceError) WithOutput(output string) *WorkspaceError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *WorkspaceError) Error() string {
	prefix := "workspace error"
	if e.Path != "" {
		prefix = fmt.Sprintf("workspace error [path=%s]", e.Path)
	}
	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	if e.Output != "" {
		return fmt.Sprintf("%s: %s\n%s", prefix, msg, e.Output)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying error.
func (e *WorkspaceError) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error or its cause.
func (e *WorkspaceError) Is(target error) bool {
	if _, ok := target.(*WorkspaceError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// EngineError
// -----------------------------------------------------------------------------

// EngineError represents an infrastructure failure from the external
// execution engine. Retriable up to the attempt ceiling.
type EngineError struct {
	// Op is the engine capability that failed: "clarify", "build" or "test".
	Op    string
	cause error
}

// NewEngineError creates a new EngineError for the given engine operation.
func NewEngineError(op string, cause error) *EngineError {
	return &EngineError{Op: op, cause: cause}
}

// Error returns the formatted error message.
func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("engine %s failed: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("engine %s failed", e.Op)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error or its cause.
func (e *EngineError) Is(target error) bool {
	if _, ok := target.(*EngineError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError indicates that a named resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is reports whether target matches this error.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.Resource == "task" && target == ErrTaskNotFound
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient enough that the
// auto-fix path may consume an attempt on it. Policy, plan and transition
// failures are terminal for the current attempt; engine failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return true
	}
	var te *TransitionError
	var pe *PlanError
	var pole *PolicyError
	if errors.As(err, &te) || errors.As(err, &pe) || errors.As(err, &pole) {
		return false
	}
	var we *WorkspaceError
	if errors.As(err, &we) {
		// Needs operator intervention; the orchestrator never retries it.
		return false
	}
	return false
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrTaskNotFound)
}
