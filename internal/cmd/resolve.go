package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/task"
)

// resolveTask loads a task by full id or unique prefix, so users can
// paste the short ids the list output shows.
func resolveTask(ctx context.Context, a *app, ref string) (*task.Task, error) {
	t, err := a.store.Get(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	tasks, listErr := a.store.List(ctx)
	if listErr != nil {
		return nil, listErr
	}
	var match *task.Task
	for _, cand := range tasks {
		if strings.HasPrefix(cand.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("task id prefix %q is ambiguous", ref)
			}
			match = cand
		}
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}
