// Package engine defines the boundary to the AI execution engine that
// clarifies, builds and tests code changes, and to the chat channel that
// drives it. The orchestrator depends only on these interfaces; concrete
// backends live behind them.
package engine

import (
	"context"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// Usage reports token consumption and estimated cost of one engine call.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ClarifyResult is the outcome of a clarification pass: a human-readable
// summary of the intended change plus a structured plan for it.
type ClarifyResult struct {
	Summary string
	Plan    *task.Plan
	Usage   Usage
}

// BuildResult is the outcome of a code-change pass inside the task's
// workspace. DiffRef points at the stored diff artifact.
type BuildResult struct {
	ChangedFiles []string
	DiffRef      string
	Output       string
	Usage        Usage
}

// TestRun is the outcome of executing one test command. A zero ExitCode
// means the command passed.
type TestRun struct {
	Command    string
	ExitCode   int
	LogRef     string
	DurationMs int64
	Usage      Usage
}

// Engine executes the three capabilities the task lifecycle needs. All
// calls are blocking; implementations honor ctx cancellation. Failures
// should be wrapped in *errors.EngineError so the orchestrator can tell
// infrastructure faults from semantic failures.
type Engine interface {
	// Clarify analyzes the task's description and produces a summary and
	// plan. For auto-fix cycles the task carries the failure context in
	// its artifacts and events.
	Clarify(ctx context.Context, t *task.Task) (ClarifyResult, error)

	// Build applies the plan's code steps inside the task's workspace.
	Build(ctx context.Context, t *task.Task) (BuildResult, error)

	// RunTest executes one test command inside the task's workspace.
	RunTest(ctx context.Context, t *task.Task, command string) (TestRun, error)
}

// InboundMessage is a channel-agnostic chat message addressed to a task.
type InboundMessage struct {
	UserID         string
	ConversationID string
	MessageID      string
	Text           string
}
