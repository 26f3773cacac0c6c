// Package orchestrator drives tasks through their lifecycle. It is the
// only component that commits state transitions and persists task
// records; the engine, classifier and workspace manager are injected.
//
// Callers must not invoke RunTask concurrently with itself, ClarifyTask
// or ApproveTask for the same task id. The store serializes writes, but
// the read-modify-write sequences here assume a single writer per task.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pilotcrew/taskpilot/internal/engine"
	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/logging"
	"github.com/pilotcrew/taskpilot/internal/store"
	"github.com/pilotcrew/taskpilot/internal/task"
	"github.com/pilotcrew/taskpilot/internal/workspace"
)

// WorkspaceProvisioner is the slice of the workspace manager the
// orchestrator needs. Satisfied by *workspace.Manager.
type WorkspaceProvisioner interface {
	Create(ctx context.Context, taskID, title, baseBranch, branchPrefix string) (*workspace.Workspace, error)
	Remove(ctx context.Context, path string, force bool) error
}

// Options carries the configuration slice the orchestrator acts on.
type Options struct {
	// RepoName labels task records; informational only.
	RepoName string
	// BaseBranch is the branch task branches start from.
	BaseBranch string
	// BranchPrefix prefixes task branch names.
	BranchPrefix string
	// MaxAttempts is the per-task run attempt ceiling. Zero means the
	// task default.
	MaxAttempts int
	// ApprovalRequired gates tasks behind an explicit approval.
	ApprovalRequired bool
}

// Orchestrator owns the task lifecycle.
type Orchestrator struct {
	store      *store.Store
	workspaces WorkspaceProvisioner
	engine     engine.Engine
	classifier engine.Classifier
	opts       Options
	logger     *logging.Logger
}

// New creates an Orchestrator. classifier may be nil, in which case the
// rule-based default is used.
func New(st *store.Store, ws WorkspaceProvisioner, eng engine.Engine, classifier engine.Classifier, opts Options, logger *logging.Logger) *Orchestrator {
	if classifier == nil {
		classifier = engine.RuleClassifier{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		store:      st,
		workspaces: ws,
		engine:     eng,
		classifier: classifier,
		opts:       opts,
		logger:     logger.WithComponent("orchestrator"),
	}
}

// CreateRequest describes a new task arriving from a chat channel.
type CreateRequest struct {
	Title       string
	Description string
	Source      task.Source
}

// CreateTask records a new task in the NEW state.
func (o *Orchestrator) CreateTask(ctx context.Context, req CreateRequest) (*task.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("task title cannot be empty")
	}

	t := task.New(req.Title, req.Description, req.Source, task.RepoContext{
		Name:       o.opts.RepoName,
		BaseBranch: o.opts.BaseBranch,
	})
	if o.opts.MaxAttempts > 0 {
		t.MaxAttempts = o.opts.MaxAttempts
	}
	t.Approval.Required = o.opts.ApprovalRequired

	if err := o.store.Save(ctx, t); err != nil {
		return nil, err
	}

	o.logger.WithTask(t.ID).Info("task created", "title", t.Title, "channel", req.Source.ChannelID)
	return t, nil
}

// ClarifyTask runs the clarification pass: the engine summarizes the
// request and proposes a plan, and the task lands in WAIT_APPROVAL. A
// clarify failure fails the task.
func (o *Orchestrator) ClarifyTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log := o.logger.WithTask(t.ID)

	if err := t.AttemptTransition(task.StateClarifying, nil); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, t); err != nil {
		return nil, err
	}

	res, err := o.engine.Clarify(ctx, t)
	if err != nil {
		log.Error("clarify failed", "error", err.Error())
		return t, o.failTask(ctx, t, fmt.Errorf("clarify: %w", err))
	}

	t.Artifacts.ClarifySummary = res.Summary
	t.Plan = res.Plan
	t.AppendEvent(task.Event{
		Type:    task.EventPlanUpdated,
		Message: "plan proposed by engine",
		Meta:    usageMeta(res.Usage),
	})

	if t.Plan == nil {
		log.Error("clarify returned no plan")
		return t, o.failTask(ctx, t, fmt.Errorf("clarify: %w", errors.ErrPlanMissing))
	}
	if problems := t.Plan.Validate(); len(problems) > 0 {
		perr := errors.NewPlanError(t.ID, problems)
		log.Error("proposed plan invalid", "error", perr.Error())
		return t, o.failTask(ctx, t, perr)
	}

	if err := t.AttemptTransition(task.StateWaitApproval, nil); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, t); err != nil {
		return nil, err
	}

	log.Info("task clarified", "steps", planSteps(t.Plan))
	return t, nil
}

// ApproveTask records an approval. It does not start the run; RUNNING is
// entered by RunTask so approval and execution stay separate decisions.
func (o *Orchestrator) ApproveTask(ctx context.Context, id, approver string) (*task.Task, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State != task.StateWaitApproval {
		return nil, errors.NewTransitionError(string(t.State), string(task.StateRunning), "task is not awaiting approval")
	}

	now := time.Now().UTC()
	t.Approval.ApprovedBy = approver
	t.Approval.ApprovedAt = &now
	t.AppendEvent(task.Event{
		Type:    task.EventApproval,
		Message: "approved",
		Meta:    map[string]string{"approver": approver},
	})
	t.Touch()

	if err := o.store.Save(ctx, t); err != nil {
		return nil, err
	}

	o.logger.WithTask(t.ID).Info("task approved", "approver", approver)
	return t, nil
}

// HandleApprovalMessage classifies a user reply on a waiting task and
// acts on it: approve records the approval, reject cancels the task, and
// anything else only leaves an event. The classification is returned so
// the channel adapter can phrase its reply.
func (o *Orchestrator) HandleApprovalMessage(ctx context.Context, id string, msg engine.InboundMessage) (engine.Intent, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return engine.Intent{}, err
	}

	intent, err := o.classifier.Classify(ctx, msg.Text, t)
	if err != nil {
		return engine.Intent{}, fmt.Errorf("classify approval message: %w", err)
	}
	log := o.logger.WithTask(t.ID)

	switch intent.Kind {
	case engine.IntentApprove:
		_, err = o.ApproveTask(ctx, id, msg.UserID)
		return intent, err

	case engine.IntentReject:
		if err := t.AttemptTransition(task.StateCancelled, map[string]string{"by": msg.UserID}); err != nil {
			return intent, err
		}
		if err := o.store.Save(ctx, t); err != nil {
			return intent, err
		}
		log.Info("task cancelled by user", "user", msg.UserID)
		return intent, nil

	default:
		t.AppendEvent(task.Event{
			Type:    task.EventNote,
			Message: msg.Text,
			Meta:    map[string]string{"intent": string(intent.Kind), "user": msg.UserID},
		})
		t.Touch()
		return intent, o.store.Save(ctx, t)
	}
}

// ProvisionWorkspace creates the task's isolated worktree and records
// its location on the task.
func (o *Orchestrator) ProvisionWorkspace(ctx context.Context, id string) (*task.Task, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	base := t.Repo.BaseBranch
	if base == "" {
		base = o.opts.BaseBranch
	}
	ws, err := o.workspaces.Create(ctx, t.ID, t.Title, base, o.opts.BranchPrefix)
	if err != nil {
		return nil, err
	}

	t.Repo.WorkspacePath = ws.Path
	t.Repo.WorkspaceBranch = ws.Branch
	t.Repo.BaseBranch = ws.BaseBranch
	t.AppendEvent(task.Event{
		Type:    task.EventWorkspace,
		Message: "workspace provisioned",
		Meta:    map[string]string{"path": ws.Path, "branch": ws.Branch},
	})
	t.Touch()

	if err := o.store.Save(ctx, t); err != nil {
		return nil, err
	}

	o.logger.WithTask(t.ID).Info("workspace provisioned", "path", ws.Path, "branch", ws.Branch)
	return t, nil
}

// failTask records the error and forces the task into FAILED. When even
// the FAILED transition is rejected the state is overwritten directly;
// that should never happen and is logged as an anomaly.
func (o *Orchestrator) failTask(ctx context.Context, t *task.Task, cause error) error {
	t.RecordError(cause)
	if terr := t.AttemptTransition(task.StateFailed, nil); terr != nil {
		o.logger.WithTask(t.ID).Error("FAILED transition rejected, overwriting state",
			"from", string(t.State), "error", terr.Error())
		t.State = task.StateFailed
		t.Touch()
	}
	if serr := o.store.Save(ctx, t); serr != nil {
		return errors.Join(cause, serr)
	}
	return cause
}

func usageMeta(u engine.Usage) map[string]string {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return nil
	}
	return map[string]string{
		"input_tokens":  fmt.Sprintf("%d", u.InputTokens),
		"output_tokens": fmt.Sprintf("%d", u.OutputTokens),
		"cost_usd":      fmt.Sprintf("%.4f", u.CostUSD),
	}
}

func planSteps(p *task.Plan) int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}
