package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taperrors "github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/task"
)

// saveAged persists a task in the given state with UpdatedAt pushed back by
// age. Save refreshes nothing itself; the record keeps whatever timestamps
// it carries.
func saveAged(t *testing.T, s *Store, title string, state task.State, age time.Duration) *task.Task {
	t.Helper()
	tk := newTestTask(title)
	tk.State = state
	tk.UpdatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, s.Save(context.Background(), tk))
	return tk
}

func TestPruneAgeAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := 10 * 24 * time.Hour
	done := saveAged(t, s, "finished long ago", task.StateDone, old)
	running := saveAged(t, s, "still going", task.StateRunning, old)

	report, err := s.Prune(ctx, Filter{
		States:    []task.State{task.StateDone},
		OlderThan: 24 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.ByState[task.StateDone])

	_, err = s.Get(ctx, done.ID)
	assert.True(t, taperrors.IsNotFound(err))

	kept, err := s.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateRunning, kept.State)
}

func TestPruneProtectsInFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := 48 * time.Hour
	saveAged(t, s, "running", task.StateRunning, old)
	saveAged(t, s, "testing", task.StateTesting, old)
	saveAged(t, s, "waiting", task.StateWaitApproval, old)
	failed := saveAged(t, s, "failed", task.StateFailed, old)

	report, err := s.Prune(ctx, Filter{OlderThan: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 1, report.Deleted)

	_, err = s.Get(ctx, failed.ID)
	assert.True(t, taperrors.IsNotFound(err))
}

func TestPruneIncludeInFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveAged(t, s, "stuck", task.StateRunning, 30*24*time.Hour)

	report, err := s.Prune(ctx, Filter{
		OlderThan:       24 * time.Hour,
		IncludeInFlight: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
}

func TestPruneDryRunMatchesRealRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := 72 * time.Hour
	saveAged(t, s, "a", task.StateDone, old)
	saveAged(t, s, "b", task.StateCancelled, old)
	saveAged(t, s, "fresh", task.StateDone, time.Hour)

	f := Filter{
		States:    []task.State{task.StateDone, task.StateCancelled},
		OlderThan: 24 * time.Hour,
	}

	dry, err := s.Prune(ctx, Filter{States: f.States, OlderThan: f.OlderThan, DryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Matched)
	assert.Equal(t, 0, dry.Deleted)

	dryIDs := make([]string, 0, len(dry.Preview))
	for _, sum := range dry.Preview {
		dryIDs = append(dryIDs, sum.ID)
	}

	real, err := s.Prune(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, dry.Matched, real.Matched)
	assert.Equal(t, real.Matched, real.Deleted)

	realIDs := make([]string, 0, len(real.Preview))
	for _, sum := range real.Preview {
		realIDs = append(realIDs, sum.ID)
	}
	assert.ElementsMatch(t, dryIDs, realIDs)
}

func TestPruneLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		saveAged(t, s, "done", task.StateDone, 48*time.Hour)
	}

	report, err := s.Prune(ctx, Filter{States: []task.State{task.StateDone}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 2, report.Deleted)

	left, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestPruneMinAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exhausted := newTestTask("gave up")
	exhausted.State = task.StateFailed
	exhausted.Attempt = 3
	require.NoError(t, s.Save(ctx, exhausted))

	young := newTestTask("one try")
	young.State = task.StateFailed
	young.Attempt = 1
	require.NoError(t, s.Save(ctx, young))

	report, err := s.Prune(ctx, Filter{MinAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	_, err = s.Get(ctx, exhausted.ID)
	assert.True(t, taperrors.IsNotFound(err))
	_, err = s.Get(ctx, young.ID)
	assert.NoError(t, err)
}

func TestPruneEmptyStore(t *testing.T) {
	s := newTestStore(t)

	report, err := s.Prune(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Deleted)
	assert.Empty(t, report.Preview)
}
