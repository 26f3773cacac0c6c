package orchestrator

import (
	"context"
	"fmt"

	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/policy"
	"github.com/pilotcrew/taskpilot/internal/store"
	"github.com/pilotcrew/taskpilot/internal/task"
)

// RunTask executes one approved run attempt: build, policy check, tests,
// and at most one auto-fix cycle when tests fail and attempts remain.
// The attempt counter increments once per RunTask call; the auto-fix
// cycle happens inside the same attempt.
func (o *Orchestrator) RunTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log := o.logger.WithTask(t.ID)

	if t.AttemptsExhausted() {
		return t, fmt.Errorf("task %s: %w (%d of %d)", t.ID, errors.ErrAttemptsExhausted, t.Attempt, t.MaxAttempts)
	}

	// Plan problems are not fixable by retrying the engine; they fail the
	// task without touching the attempt budget's auto-fix path.
	if t.Plan == nil {
		return t, o.failTask(ctx, t, errors.ErrPlanMissing)
	}
	if problems := t.Plan.ValidateForRun(); len(problems) > 0 {
		perr := errors.NewPlanError(t.ID, problems)
		log.Error("plan not runnable", "error", perr.Error())
		return t, o.failTask(ctx, t, perr)
	}

	t.Attempt++
	if err := t.AttemptTransition(task.StateRunning, map[string]string{"attempt": fmt.Sprintf("%d", t.Attempt)}); err != nil {
		t.Attempt--
		return t, err
	}
	if err := o.store.Save(ctx, t); err != nil {
		return t, err
	}
	log.Info("run started", "attempt", t.Attempt, "max_attempts", t.MaxAttempts)

	if err := o.buildAndEnforce(ctx, t); err != nil {
		return t, o.failTask(ctx, t, err)
	}

	if err := t.AttemptTransition(task.StateTesting, nil); err != nil {
		return t, o.failTask(ctx, t, err)
	}
	if err := o.store.Save(ctx, t); err != nil {
		return t, err
	}

	passed, err := o.runTests(ctx, t)
	if err != nil {
		return t, o.failTask(ctx, t, err)
	}
	if passed {
		return t, o.finishDone(ctx, t)
	}

	if t.AttemptsExhausted() {
		log.Warn("tests failed with attempts exhausted", "attempt", t.Attempt)
		return t, o.failTask(ctx, t, fmt.Errorf("tests failed: %w", errors.ErrAttemptsExhausted))
	}

	return t, o.autoFix(ctx, t)
}

// buildAndEnforce runs the engine build and applies the plan's file
// change policy to the result, recording diff artifacts on success.
func (o *Orchestrator) buildAndEnforce(ctx context.Context, t *task.Task) error {
	res, err := o.engine.Build(ctx, t)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	if err := policy.Enforce(res.ChangedFiles, t.Plan.Constraints); err != nil {
		o.logger.WithTask(t.ID).Warn("change policy violated", "error", err.Error())
		return err
	}

	t.Artifacts.DiffRef = res.DiffRef
	t.Artifacts.ChangedFiles = res.ChangedFiles
	t.Touch()
	return nil
}

// runTests executes the plan's TEST steps in order, stopping at the
// first failure, and writes the structured report artifact. It returns
// whether every step passed; the error return is for infrastructure
// faults only.
func (o *Orchestrator) runTests(ctx context.Context, t *task.Task) (bool, error) {
	log := o.logger.WithTask(t.ID)
	steps := t.Plan.TestSteps()
	results := make([]task.TestResult, 0, len(steps))
	passed := true

	for _, step := range steps {
		t.Plan.SetStepStatus(step.ID, task.StepRunning)
		run, err := o.engine.RunTest(ctx, t, step.Command)
		if err != nil {
			t.Plan.SetStepStatus(step.ID, task.StepFailed)
			return false, fmt.Errorf("test %q: %w", step.Command, err)
		}

		result := task.TestResult{
			Command:    run.Command,
			ExitCode:   run.ExitCode,
			LogRef:     run.LogRef,
			DurationMs: run.DurationMs,
			Passed:     run.ExitCode == 0,
		}
		results = append(results, result)

		if result.Passed {
			t.Plan.SetStepStatus(step.ID, task.StepCompleted)
			continue
		}
		t.Plan.SetStepStatus(step.ID, task.StepFailed)
		log.Warn("test step failed", "command", step.Command, "exit_code", run.ExitCode)
		passed = false
		break
	}

	t.Artifacts.TestResults = results
	ref, err := o.store.SaveReport(ctx, store.TestReport{
		TaskID:  t.ID,
		Attempt: t.Attempt,
		Passed:  passed,
		Results: results,
	})
	if err != nil {
		return false, fmt.Errorf("save test report: %w", err)
	}
	t.Artifacts.TestReportRef = ref
	t.Touch()

	return passed, o.store.Save(ctx, t)
}

// autoFix runs the single bounded fix cycle: clarify with failure
// context, rebuild, re-run the same ordered test steps. Pass lands the
// task in DONE; any failure or fault lands it in FAILED. The cycle never
// recurses.
func (o *Orchestrator) autoFix(ctx context.Context, t *task.Task) error {
	log := o.logger.WithTask(t.ID)

	if err := t.AttemptTransition(task.StateAutoFixing, failureMeta(t)); err != nil {
		return o.failTask(ctx, t, err)
	}
	if err := o.store.Save(ctx, t); err != nil {
		return err
	}
	log.Info("auto-fix cycle started", "attempt", t.Attempt)

	res, err := o.engine.Clarify(ctx, t)
	if err != nil {
		return o.failTask(ctx, t, fmt.Errorf("auto-fix clarify: %w", err))
	}
	if res.Summary != "" {
		t.AppendEvent(task.Event{
			Type:    task.EventNote,
			Message: "auto-fix analysis: " + res.Summary,
			Meta:    usageMeta(res.Usage),
		})
	}

	if err := o.buildAndEnforce(ctx, t); err != nil {
		return o.failTask(ctx, t, fmt.Errorf("auto-fix: %w", err))
	}

	if err := t.AttemptTransition(task.StateTesting, map[string]string{"auto_fix": "true"}); err != nil {
		return o.failTask(ctx, t, err)
	}
	if err := o.store.Save(ctx, t); err != nil {
		return err
	}

	passed, err := o.runTests(ctx, t)
	if err != nil {
		return o.failTask(ctx, t, err)
	}
	if !passed {
		log.Warn("tests still failing after auto-fix", "attempt", t.Attempt)
		return o.failTask(ctx, t, fmt.Errorf("tests failed after auto-fix"))
	}
	return o.finishDone(ctx, t)
}

// finishDone commits the DONE transition and persists.
func (o *Orchestrator) finishDone(ctx context.Context, t *task.Task) error {
	if err := t.AttemptTransition(task.StateDone, nil); err != nil {
		return o.failTask(ctx, t, err)
	}
	if err := o.store.Save(ctx, t); err != nil {
		return err
	}
	o.logger.WithTask(t.ID).Info("task done",
		"attempt", t.Attempt,
		"changed_files", len(t.Artifacts.ChangedFiles))
	return nil
}

func failureMeta(t *task.Task) map[string]string {
	for i := len(t.Artifacts.TestResults) - 1; i >= 0; i-- {
		r := t.Artifacts.TestResults[i]
		if !r.Passed {
			return map[string]string{
				"failed_command": r.Command,
				"exit_code":      fmt.Sprintf("%d", r.ExitCode),
			}
		}
	}
	return nil
}
