// Package cmd wires the taskpilot CLI: thin cobra commands over the
// orchestrator, store and cleanup runner.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pilotcrew/taskpilot/internal/cleanup"
	"github.com/pilotcrew/taskpilot/internal/config"
	"github.com/pilotcrew/taskpilot/internal/engine"
	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/logging"
	"github.com/pilotcrew/taskpilot/internal/orchestrator"
	"github.com/pilotcrew/taskpilot/internal/store"
	"github.com/pilotcrew/taskpilot/internal/task"
	"github.com/pilotcrew/taskpilot/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "Chat-gated AI code change task runner",
	Long: `Taskpilot tracks AI code change tasks from a chat request through
clarification, human approval, isolated execution in a git worktree,
testing and bounded auto-fix retry.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/taskpilot/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TASKPILOT")
	// TASKPILOT_TASK_MAX_ATTEMPTS maps to task.max_attempts
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// app bundles the wired components commands operate on.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
	orch   *orchestrator.Orchestrator
}

// newApp loads configuration and wires the store and orchestrator. The
// engine is a stub until a real backend is configured; commands that
// need it fail with a clear message instead of silently doing nothing.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.New(cfg.DataDir(), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
	}

	st, err := store.New(cfg.DataDir(), logger)
	if err != nil {
		return nil, err
	}

	var ws orchestrator.WorkspaceProvisioner
	if m, err := workspace.New(cfg.Repo.Dir, cfg.WorktreeDir(), logger); err == nil {
		ws = m
	}
	// A missing git repo only blocks workspace provisioning, not the
	// record-keeping commands.

	orch := orchestrator.New(st, ws, stubEngine{}, nil, orchestrator.Options{
		RepoName:         cfg.Repo.Dir,
		BaseBranch:       cfg.Repo.BaseBranch,
		BranchPrefix:     cfg.Branch.Prefix,
		MaxAttempts:      cfg.Task.MaxAttempts,
		ApprovalRequired: cfg.Task.ApprovalRequired,
	}, logger)

	return &app{cfg: cfg, logger: logger, store: st, orch: orch}, nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func (a *app) cleanupRunner() *cleanup.Runner {
	states := make([]task.State, 0, len(a.cfg.Retention.States))
	for _, s := range a.cfg.Retention.States {
		if st, ok := task.ParseState(s); ok {
			states = append(states, st)
		}
	}
	return cleanup.New(a.store, cleanup.Policy{
		Schedule: a.cfg.Retention.Schedule,
		MaxAge:   a.cfg.Retention.MaxAge(),
		States:   states,
	}, a.logger)
}

// stubEngine stands in until an execution backend is configured.
type stubEngine struct{}

func (stubEngine) Clarify(ctx context.Context, t *task.Task) (engine.ClarifyResult, error) {
	return engine.ClarifyResult{}, errors.NewEngineError("clarify", fmt.Errorf("no execution engine configured"))
}

func (stubEngine) Build(ctx context.Context, t *task.Task) (engine.BuildResult, error) {
	return engine.BuildResult{}, errors.NewEngineError("build", fmt.Errorf("no execution engine configured"))
}

func (stubEngine) RunTest(ctx context.Context, t *task.Task, command string) (engine.TestRun, error) {
	return engine.TestRun{}, errors.NewEngineError("test", fmt.Errorf("no execution engine configured"))
}
