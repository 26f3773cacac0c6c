package task

import (
	"testing"

	"github.com/pilotcrew/taskpilot/internal/errors"
)

// legalPairs mirrors the lifecycle transition table.
var legalPairs = map[State][]State{
	StateNew:          {StateClarifying, StateFailed, StateCancelled},
	StateClarifying:   {StateWaitApproval, StateFailed, StateCancelled},
	StateWaitApproval: {StateRunning, StateFailed, StateCancelled},
	StateRunning:      {StateTesting, StateFailed, StateCancelled},
	StateTesting:      {StateDone, StateFailed, StateAutoFixing, StateCancelled},
	StateAutoFixing:   {StateTesting, StateDone, StateFailed, StateCancelled},
	StateFailed:       {StateRunning, StateAutoFixing, StateCancelled},
	StateDone:         {},
	StateCancelled:    {},
}

func isLegal(from, to State) bool {
	for _, t := range legalPairs[from] {
		if t == to {
			return true
		}
	}
	return false
}

// readyTask returns a task whose readiness guards all pass, positioned at
// the given state.
func readyTask(state State) *Task {
	t := New("fix login flow", "login page 500s", Source{}, RepoContext{Name: "web", BaseBranch: "main"})
	t.State = state
	t.Approval.ApprovedBy = "alice"
	t.Plan = &Plan{
		Goal:        "fix it",
		Constraints: Constraints{AllowedPaths: []string{"src/**"}, MaxFilesChanged: 5},
		Steps: []Step{
			{ID: "s1", Type: StepCode, Status: StepPending},
			{ID: "s2", Type: StepTest, Command: "npm test", Status: StepPending},
		},
	}
	t.Artifacts.DiffRef = "diffs/abc"
	t.Artifacts.TestReportRef = "reports/abc"
	return t
}

func TestTransitionTableExhaustive(t *testing.T) {
	for _, from := range AllStates() {
		for _, to := range AllStates() {
			tk := readyTask(from)
			eventsBefore := len(tk.Events)
			err := tk.AttemptTransition(to, map[string]string{"caller": "test"})

			if isLegal(from, to) {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
					continue
				}
				if tk.State != to {
					t.Errorf("%s -> %s: state is %s", from, to, tk.State)
				}
				if got := len(tk.Events) - eventsBefore; got != 1 {
					t.Errorf("%s -> %s: appended %d events, want 1", from, to, got)
				}
				last := tk.Events[len(tk.Events)-1]
				if last.Type != EventTransition || last.From != from || last.To != to {
					t.Errorf("%s -> %s: bad transition event %+v", from, to, last)
				}
				if last.Meta["caller"] != "test" {
					t.Errorf("%s -> %s: event lost caller metadata", from, to)
				}
			} else {
				var te *errors.TransitionError
				if !errors.As(err, &te) {
					t.Errorf("%s -> %s: expected TransitionError, got %v", from, to, err)
					continue
				}
				if tk.State != from {
					t.Errorf("%s -> %s: illegal transition mutated state to %s", from, to, tk.State)
				}
				if len(tk.Events) != eventsBefore {
					t.Errorf("%s -> %s: illegal transition appended events", from, to)
				}
			}
		}
	}
}

func TestRunningGuardsIndependent(t *testing.T) {
	breakers := []struct {
		name  string
		apply func(*Task)
	}{
		{"approval missing", func(tk *Task) { tk.Approval.ApprovedBy = "" }},
		{"plan missing", func(tk *Task) { tk.Plan = nil }},
		{"required question open", func(tk *Task) {
			tk.Plan.Questions = []Question{{ID: "q1", Text: "which db?", Required: true, Status: QuestionOpen}}
		}},
	}

	for _, b := range breakers {
		t.Run(b.name, func(t *testing.T) {
			tk := readyTask(StateWaitApproval)
			b.apply(tk)

			err := tk.AttemptTransition(StateRunning, nil)
			var te *errors.TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransitionError, got %v", err)
			}
			if te.Guard == "" {
				t.Error("expected a named guard failure, got table violation")
			}
			if tk.State != StateWaitApproval {
				t.Errorf("guard failure mutated state to %s", tk.State)
			}
		})
	}

	// Optional required question already answered does not block.
	tk := readyTask(StateWaitApproval)
	tk.Plan.Questions = []Question{
		{ID: "q1", Text: "which db?", Required: true, Status: QuestionAnswered, Answer: "postgres"},
		{ID: "q2", Text: "naming?", Required: false, Status: QuestionOpen},
	}
	if err := tk.AttemptTransition(StateRunning, nil); err != nil {
		t.Errorf("answered-required/open-optional should not block RUNNING: %v", err)
	}
}

func TestTestingGuardRequiresDiff(t *testing.T) {
	tk := readyTask(StateRunning)
	tk.Artifacts.DiffRef = ""

	err := tk.AttemptTransition(StateTesting, nil)
	var te *errors.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.Guard != "diff artifact missing" {
		t.Errorf("Guard = %q", te.Guard)
	}
}

func TestDoneGuardRequiresReport(t *testing.T) {
	tk := readyTask(StateTesting)
	tk.Artifacts.TestReportRef = ""

	if err := tk.AttemptTransition(StateDone, nil); err == nil {
		t.Fatal("expected guard failure entering DONE without a test report")
	}
	if tk.State != StateTesting {
		t.Errorf("state mutated to %s", tk.State)
	}
}

func TestParseState(t *testing.T) {
	if s, ok := ParseState("AUTO_FIXING"); !ok || s != StateAutoFixing {
		t.Errorf("ParseState(AUTO_FIXING) = %v, %v", s, ok)
	}
	if _, ok := ParseState("SLEEPING"); ok {
		t.Error("ParseState accepted unknown state")
	}
}

func TestInFlightStates(t *testing.T) {
	inFlight := map[State]bool{
		StateRunning: true, StateTesting: true, StateClarifying: true,
		StateAutoFixing: true, StateWaitApproval: true,
	}
	for _, s := range AllStates() {
		if got := s.IsInFlight(); got != inFlight[s] {
			t.Errorf("%s.IsInFlight() = %v", s, got)
		}
	}
}
