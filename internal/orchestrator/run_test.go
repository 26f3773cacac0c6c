package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taperrors "github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/task"
)

func TestRunTaskAllPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.NoError(t, err)

	assert.Equal(t, task.StateDone, got.State)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, []string{"src/auth.go"}, got.Artifacts.ChangedFiles)
	assert.NotEmpty(t, got.Artifacts.DiffRef)
	assert.NotEmpty(t, got.Artifacts.TestReportRef)
	require.Len(t, got.Artifacts.TestResults, 1)
	assert.True(t, got.Artifacts.TestResults[0].Passed)

	// One build, one test command, no auto-fix clarify.
	assert.Equal(t, 1, f.eng.buildCalls)
	assert.Equal(t, 1, f.eng.testCalls)
	assert.Equal(t, 1, f.eng.clarifyCalls) // the initial clarification only

	report, err := f.st.LoadReport(ctx, got.Artifacts.TestReportRef)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 1, report.Attempt)
}

func TestRunTaskAutoFixRecovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	f.eng.testExits = []int{1} // first run fails, fix-cycle run passes

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.NoError(t, err)

	assert.Equal(t, task.StateDone, got.State)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, 2, f.eng.buildCalls)
	assert.Equal(t, 2, f.eng.testCalls)
	assert.Equal(t, 2, f.eng.clarifyCalls) // initial + fix analysis

	// The lifecycle passed through AUTO_FIXING.
	states := transitionTargets(got)
	assert.Contains(t, states, task.StateAutoFixing)
}

func TestRunTaskAutoFixStillFailing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	f.eng.testExits = []int{1, 1} // both the run and the fix cycle fail

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)

	// One failing attempt of three: the fix cycle consumed no extra
	// attempt, and the task stays retryable.
	assert.Equal(t, task.StateFailed, got.State)
	assert.Equal(t, 1, got.Attempt)
	assert.False(t, got.AttemptsExhausted())
	assert.Contains(t, got.LastError, "after auto-fix")

	states := transitionTargets(got)
	assert.Contains(t, states, task.StateAutoFixing)
}

func TestRunTaskRetryAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	f.eng.testExits = []int{1, 1} // first RunTask fails both rounds

	_, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)

	// Second invocation starts attempt 2 from FAILED and passes.
	got, err := f.orch.RunTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateDone, got.State)
	assert.Equal(t, 2, got.Attempt)
}

func TestRunTaskAttemptCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)

	// Every test run fails, forever.
	f.eng.testExits = []int{1, 1, 1, 1, 1, 1, 1, 1}

	for i := 0; i < 3; i++ {
		_, err := f.orch.RunTask(ctx, tk.ID)
		require.Error(t, err, "attempt %d", i+1)
	}

	got, _ := f.st.Get(ctx, tk.ID)
	assert.Equal(t, task.StateFailed, got.State)
	assert.Equal(t, 3, got.Attempt)
	assert.True(t, got.AttemptsExhausted())

	// The fourth invocation fails fast without touching the engine.
	builds := f.eng.buildCalls
	_, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, taperrors.ErrAttemptsExhausted)
	assert.Equal(t, builds, f.eng.buildCalls)
}

func TestRunTaskLastAttemptSkipsAutoFix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	tk.Attempt = 2 // next run is the final attempt
	require.NoError(t, f.st.Save(ctx, tk))
	f.eng.testExits = []int{1}

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, taperrors.ErrAttemptsExhausted)
	assert.Equal(t, task.StateFailed, got.State)
	assert.Equal(t, 3, got.Attempt)

	states := transitionTargets(got)
	assert.NotContains(t, states, task.StateAutoFixing)
}

func TestRunTaskPolicyViolationSkipsAutoFix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	f.eng.changedFiles = []string{"src/auth.go", "secrets/key.txt"}

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	var pe *taperrors.PolicyError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "secrets/key.txt", pe.Path)

	assert.Equal(t, task.StateFailed, got.State)
	// No test ran and no fix cycle started.
	assert.Equal(t, 0, f.eng.testCalls)
	assert.Equal(t, 1, f.eng.clarifyCalls)
}

func TestRunTaskBuildErrorFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	f.eng.buildErr = taperrors.NewEngineError("build", fmt.Errorf("sandbox crashed"))

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	assert.Equal(t, task.StateFailed, got.State)
	assert.Contains(t, got.LastError, "sandbox crashed")
	// The attempt was consumed; a later RunTask may retry.
	assert.Equal(t, 1, got.Attempt)
}

func TestRunTaskUnrunnablePlanFailsWithoutAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.readyTask(t)
	tk.Plan.Constraints.AllowedPaths = nil
	require.NoError(t, f.st.Save(ctx, tk))

	got, err := f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	var pe *taperrors.PlanError
	assert.ErrorAs(t, err, &pe)

	assert.Equal(t, task.StateFailed, got.State)
	assert.Equal(t, 0, got.Attempt)
	assert.Equal(t, 0, f.eng.buildCalls)
}

func TestRunTaskUnapproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, _ := f.orch.CreateTask(ctx, CreateRequest{Title: "Fix OAuth login"})
	_, err := f.orch.ClarifyTask(ctx, tk.ID)
	require.NoError(t, err)

	_, err = f.orch.RunTask(ctx, tk.ID)
	require.Error(t, err)
	var te *taperrors.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "approval missing", te.Guard)

	// The rejected run left no attempt behind.
	got, _ := f.st.Get(ctx, tk.ID)
	assert.Equal(t, 0, got.Attempt)
	assert.Equal(t, task.StateWaitApproval, got.State)
}

// transitionTargets extracts the target states of all transition events.
func transitionTargets(t *task.Task) []task.State {
	var states []task.State
	for _, ev := range t.Events {
		if ev.Type == task.EventTransition {
			states = append(states, ev.To)
		}
	}
	return states
}
