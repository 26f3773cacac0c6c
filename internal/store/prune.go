package store

import (
	"context"
	"time"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// Filter selects task records for retention pruning. Zero-valued fields
// match everything: an empty States list matches every state, a zero
// OlderThan matches any age, a zero MinAttempts matches any attempt count.
type Filter struct {
	// States limits matches to tasks in any of these states.
	States []task.State
	// OlderThan matches tasks whose last update is at least this old.
	OlderThan time.Duration
	// MinAttempts matches tasks that have consumed at least this many
	// attempts.
	MinAttempts int
	// Limit caps how many records one invocation may act on. Zero means
	// no cap.
	Limit int
	// DryRun reports what would be deleted without deleting anything.
	DryRun bool
	// IncludeInFlight lifts the protection of in-flight states
	// (RUNNING, TESTING, CLARIFYING, AUTO_FIXING, WAIT_APPROVAL).
	IncludeInFlight bool
}

// matches reports whether t satisfies every declared criterion, relative
// to now.
func (f Filter) matches(t *task.Task, now time.Time) bool {
	if !f.IncludeInFlight && t.State.IsInFlight() {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if t.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OlderThan > 0 && now.Sub(t.UpdatedAt) < f.OlderThan {
		return false
	}
	if f.MinAttempts > 0 && t.Attempt < f.MinAttempts {
		return false
	}
	return true
}

// Summary is a preview line for one record a prune invocation acted on
// (or, under dry-run, would have acted on).
type Summary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	State     task.State `json:"state"`
	Attempt   int        `json:"attempt"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Report is the outcome of one prune invocation.
type Report struct {
	Scanned int                `json:"scanned"`
	Matched int                `json:"matched"`
	Deleted int                `json:"deleted"`
	DryRun  bool               `json:"dry_run"`
	ByState map[task.State]int `json:"by_state"`
	Preview []Summary          `json:"preview"`
}

// Prune deletes task records matching the filter and returns a report of
// what was scanned, matched and deleted. In-flight records are skipped
// unless the filter explicitly includes them. Records that fail to decode
// are skipped and logged, never fatal. With DryRun set the match set is
// identical but nothing is deleted.
func (s *Store) Prune(ctx context.Context, f Filter) (*Report, error) {
	tasks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DryRun:  f.DryRun,
		ByState: make(map[task.State]int),
	}
	now := time.Now().UTC()

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		if !f.matches(t, now) {
			continue
		}
		if f.Limit > 0 && report.Matched >= f.Limit {
			continue
		}

		report.Matched++
		report.ByState[t.State]++
		report.Preview = append(report.Preview, Summary{
			ID:        t.ID,
			Title:     t.Title,
			State:     t.State,
			Attempt:   t.Attempt,
			UpdatedAt: t.UpdatedAt,
		})

		if f.DryRun {
			continue
		}
		if err := s.Delete(ctx, t.ID); err != nil {
			s.logger.Warn("prune failed to delete task", "task_id", t.ID, "error", err.Error())
			continue
		}
		report.Deleted++
	}

	return report, nil
}
