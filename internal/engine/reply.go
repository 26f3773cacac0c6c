package engine

import (
	"fmt"
	"strings"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// FormatTaskReply renders a chat status reply for a task. The output is
// plain text so every channel adapter can post it unchanged.
func FormatTaskReply(t *task.Task) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Task %s: %s\n", shortID(t.ID), t.Title)
	fmt.Fprintf(&sb, "State: %s", t.State)
	if t.Attempt > 0 {
		fmt.Fprintf(&sb, " (attempt %d of %d)", t.Attempt, t.MaxAttempts)
	}
	sb.WriteString("\n")

	switch t.State {
	case task.StateWaitApproval:
		if t.Artifacts.ClarifySummary != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", t.Artifacts.ClarifySummary)
		}
		if t.Plan != nil {
			fmt.Fprintf(&sb, "Plan: %d steps (%d test)\n", len(t.Plan.Steps), len(t.Plan.TestSteps()))
			for _, q := range t.Plan.OpenRequiredQuestions() {
				fmt.Fprintf(&sb, "Open question: %s\n", q.Text)
			}
		}
		sb.WriteString("Reply \"approve\" to run or \"reject\" to cancel.\n")
	case task.StateDone:
		if len(t.Artifacts.ChangedFiles) > 0 {
			fmt.Fprintf(&sb, "Changed %d file(s).\n", len(t.Artifacts.ChangedFiles))
		}
		if t.Artifacts.TestReportRef != "" {
			fmt.Fprintf(&sb, "Test report: %s\n", t.Artifacts.TestReportRef)
		}
	case task.StateFailed:
		if t.LastError != "" {
			fmt.Fprintf(&sb, "Error: %s\n", t.LastError)
		}
	}

	if t.Repo.WorkspaceBranch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", t.Repo.WorkspaceBranch)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
