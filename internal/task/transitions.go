package task

import (
	"github.com/pilotcrew/taskpilot/internal/errors"
)

// State is a task's lifecycle state.
type State string

const (
	StateNew          State = "NEW"
	StateClarifying   State = "CLARIFYING"
	StateWaitApproval State = "WAIT_APPROVAL"
	StateRunning      State = "RUNNING"
	StateTesting      State = "TESTING"
	StateAutoFixing   State = "AUTO_FIXING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
	StateCancelled    State = "CANCELLED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the state is final. DONE and CANCELLED never
// advance again; FAILED may still be retried.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateCancelled
}

// IsInFlight reports whether a task in this state is actively progressing
// or awaiting a gate. In-flight tasks are protected from retention pruning.
func (s State) IsInFlight() bool {
	switch s {
	case StateRunning, StateTesting, StateClarifying, StateAutoFixing, StateWaitApproval:
		return true
	default:
		return false
	}
}

// AllStates lists every lifecycle state. Used by prune filters and tests.
func AllStates() []State {
	return []State{
		StateNew, StateClarifying, StateWaitApproval, StateRunning,
		StateTesting, StateAutoFixing, StateDone, StateFailed, StateCancelled,
	}
}

// ParseState returns the State for its string form, reporting whether the
// string named a known state.
func ParseState(s string) (State, bool) {
	for _, st := range AllStates() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// transitions is the legality table. A transition is legal when the target
// appears in the source's row; guards are checked separately so callers can
// probe legality without side effects.
var transitions = map[State][]State{
	StateNew:          {StateClarifying, StateFailed, StateCancelled},
	StateClarifying:   {StateWaitApproval, StateFailed, StateCancelled},
	StateWaitApproval: {StateRunning, StateFailed, StateCancelled},
	StateRunning:      {StateTesting, StateFailed, StateCancelled},
	StateTesting:      {StateDone, StateFailed, StateAutoFixing, StateCancelled},
	StateAutoFixing:   {StateTesting, StateDone, StateFailed, StateCancelled},
	StateFailed:       {StateRunning, StateAutoFixing, StateCancelled},
}

// CanTransition reports table membership only. It says nothing about
// readiness guards.
func CanTransition(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// guard returns the name of the failed readiness precondition for entering
// to, or "" when the task is ready. Guards are checked in a fixed order but
// each is independent of the others.
func (t *Task) guard(to State) string {
	switch to {
	case StateRunning:
		if !t.Approval.Satisfied() {
			return "approval missing"
		}
		if t.Plan == nil {
			return "plan not attached"
		}
		if len(t.Plan.OpenRequiredQuestions()) > 0 {
			return "required questions still open"
		}
	case StateTesting:
		if t.Artifacts.DiffRef == "" {
			return "diff artifact missing"
		}
	case StateDone:
		if t.Artifacts.TestReportRef == "" {
			return "test report missing"
		}
	}
	return ""
}

// AttemptTransition moves the task to the target state. It checks table
// membership, then readiness guards, all-or-nothing: on success it mutates
// the state, touches UpdatedAt and appends exactly one transition event
// carrying the given metadata; on failure it returns a TransitionError and
// leaves the task untouched.
func (t *Task) AttemptTransition(to State, meta map[string]string) error {
	from := t.State
	if !CanTransition(from, to) {
		return errors.NewTransitionError(string(from), string(to), "")
	}
	if g := t.guard(to); g != "" {
		return errors.NewTransitionError(string(from), string(to), g)
	}

	t.State = to
	t.Touch()
	t.AppendEvent(Event{
		Type: EventTransition,
		From: from,
		To:   to,
		Meta: meta,
	})
	return nil
}
