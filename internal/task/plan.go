package task

import (
	"fmt"
	"time"
)

// StepType distinguishes code-change steps from test steps.
type StepType string

const (
	StepCode StepType = "CODE"
	StepTest StepType = "TEST"
)

// StepStatus tracks execution progress of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
)

// QuestionStatus tracks whether a clarification question has been answered.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "OPEN"
	QuestionAnswered QuestionStatus = "ANSWERED"
)

// Constraints bound the file changes a task's execution may make.
type Constraints struct {
	AllowedPaths    []string `json:"allowed_paths,omitempty"`
	ForbiddenPaths  []string `json:"forbidden_paths,omitempty"`
	MaxFilesChanged int      `json:"max_files_changed,omitempty"`
}

// Step is one ordered unit of planned work.
type Step struct {
	ID          string     `json:"id"`
	Type        StepType   `json:"type"`
	Description string     `json:"description,omitempty"`
	Command     string     `json:"command,omitempty"`
	Status      StepStatus `json:"status"`
}

// Question is a clarification item the engine raised during planning.
type Question struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Required bool           `json:"required"`
	Status   QuestionStatus `json:"status"`
	Answer   string         `json:"answer,omitempty"`
}

// Plan is a machine-readable, human-approved description of a task's work.
// It is replaced wholesale on each clarification pass and never partially
// mutated except through the helpers below.
type Plan struct {
	Goal        string      `json:"goal"`
	Assumptions []string    `json:"assumptions,omitempty"`
	Constraints Constraints `json:"constraints"`
	Steps       []Step      `json:"steps"`
	Questions   []Question  `json:"questions,omitempty"`

	RequiresApproval bool `json:"requires_approval"`
	AutoApproved     bool `json:"auto_approved,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the plan's structural invariant: at least one CODE step,
// at least one TEST step with a non-empty command, and unique step ids.
// It returns the list of problems found, empty when the plan is valid.
func (p *Plan) Validate() []string {
	var problems []string

	seen := make(map[string]bool, len(p.Steps))
	var codeSteps, runnableTests int
	for _, s := range p.Steps {
		if s.ID == "" {
			problems = append(problems, "step with empty id")
		} else if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true

		switch s.Type {
		case StepCode:
			codeSteps++
		case StepTest:
			if s.Command != "" {
				runnableTests++
			}
		default:
			problems = append(problems, fmt.Sprintf("step %q has unknown type %q", s.ID, s.Type))
		}
	}
	if codeSteps == 0 {
		problems = append(problems, "plan has no CODE step")
	}
	if runnableTests == 0 {
		problems = append(problems, "plan has no TEST step with a command")
	}

	return problems
}

// ValidateForRun checks run-readiness on top of Validate: a non-empty goal,
// a declared allow-list and a positive max-files bound. A plan that passes
// structural validation may still not be runnable.
func (p *Plan) ValidateForRun() []string {
	problems := p.Validate()
	if p.Goal == "" {
		problems = append(problems, "plan goal is empty")
	}
	if len(p.Constraints.AllowedPaths) == 0 {
		problems = append(problems, "plan declares no allowed paths")
	}
	if p.Constraints.MaxFilesChanged <= 0 {
		problems = append(problems, "max files changed must be positive")
	}
	return problems
}

// TestSteps returns the TEST steps in declared order.
func (p *Plan) TestSteps() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Type == StepTest {
			out = append(out, s)
		}
	}
	return out
}

// SetStepStatus updates the status of the step with the given id.
// Unknown ids are ignored.
func (p *Plan) SetStepStatus(stepID string, status StepStatus) {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			p.Steps[i].Status = status
			return
		}
	}
}

// OpenRequiredQuestions returns the required questions still awaiting an
// answer.
func (p *Plan) OpenRequiredQuestions() []Question {
	var open []Question
	for _, q := range p.Questions {
		if q.Required && q.Status != QuestionAnswered {
			open = append(open, q)
		}
	}
	return open
}

// AnswerNextQuestion records answer on the first open question and marks it
// answered. It returns the answered question, or false when no question
// is open. This is the only sanctioned partial mutation of a plan's
// question list.
func (p *Plan) AnswerNextQuestion(answer string) (Question, bool) {
	for i := range p.Questions {
		if p.Questions[i].Status != QuestionAnswered {
			p.Questions[i].Answer = answer
			p.Questions[i].Status = QuestionAnswered
			return p.Questions[i], true
		}
	}
	return Question{}, false
}
