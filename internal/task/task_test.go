package task

import (
	"fmt"
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	tk := New("add caching", "cache hot paths", Source{UserID: "u1"}, RepoContext{Name: "api", BaseBranch: "main"})

	if tk.ID == "" {
		t.Error("task id not generated")
	}
	if tk.State != StateNew {
		t.Errorf("state = %s, want NEW", tk.State)
	}
	if !tk.Approval.Required {
		t.Error("approval should default to required")
	}
	if tk.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("max attempts = %d", tk.MaxAttempts)
	}
	if len(tk.Events) != 1 || tk.Events[0].Type != EventCreated {
		t.Errorf("expected single created event, got %+v", tk.Events)
	}
	if tk.UpdatedAt.Before(tk.CreatedAt) {
		t.Error("updated_at before created_at")
	}
}

func TestEventLogCapacityDropsOldest(t *testing.T) {
	tk := New("t", "", Source{}, RepoContext{})
	for i := 0; i < MaxEvents+10; i++ {
		tk.AppendEvent(Event{Type: EventNote, Message: fmt.Sprintf("note-%d", i)})
	}

	if len(tk.Events) != MaxEvents {
		t.Fatalf("event log length = %d, want %d", len(tk.Events), MaxEvents)
	}
	// The created event and the earliest notes were dropped first.
	if tk.Events[0].Type == EventCreated {
		t.Error("oldest entries were not dropped")
	}
	last := tk.Events[len(tk.Events)-1]
	if last.Message != fmt.Sprintf("note-%d", MaxEvents+9) {
		t.Errorf("newest event = %q", last.Message)
	}
}

func TestTouchMonotonic(t *testing.T) {
	tk := New("t", "", Source{}, RepoContext{})

	prev := tk.UpdatedAt
	for i := 0; i < 100; i++ {
		tk.Touch()
		if tk.UpdatedAt.Before(prev) {
			t.Fatal("UpdatedAt moved backwards")
		}
		prev = tk.UpdatedAt
	}

	// Even with a future UpdatedAt, Touch must not regress it.
	future := time.Now().Add(time.Hour).UTC()
	tk.UpdatedAt = future
	tk.Touch()
	if tk.UpdatedAt.Before(future) {
		t.Error("Touch regressed a future UpdatedAt")
	}
}

func TestApprovalSatisfied(t *testing.T) {
	tests := []struct {
		name string
		a    Approval
		want bool
	}{
		{"not required", Approval{Required: false}, true},
		{"required, unapproved", Approval{Required: true}, false},
		{"required, approved", Approval{Required: true, ApprovedBy: "bob"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Satisfied(); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	tk := New("t", "", Source{}, RepoContext{})
	before := len(tk.Events)

	tk.RecordError(nil)
	if len(tk.Events) != before || tk.LastError != "" {
		t.Error("nil error should be a no-op")
	}

	tk.RecordError(fmt.Errorf("build exploded"))
	if tk.LastError != "build exploded" {
		t.Errorf("LastError = %q", tk.LastError)
	}
	last := tk.Events[len(tk.Events)-1]
	if last.Type != EventError || last.Message != "build exploded" {
		t.Errorf("error event = %+v", last)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	tk := New("t", "", Source{}, RepoContext{})
	tk.MaxAttempts = 2

	if tk.AttemptsExhausted() {
		t.Error("fresh task should have attempts left")
	}
	tk.Attempt = 2
	if !tk.AttemptsExhausted() {
		t.Error("attempt == max should be exhausted")
	}
}
