package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete taskpilot configuration
type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	Branch    BranchConfig    `mapstructure:"branch"`
	Task      TaskConfig      `mapstructure:"task"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// RepoConfig identifies the repository tasks operate on
type RepoConfig struct {
	// Dir is the path to the repository checkout (default: current directory)
	Dir string `mapstructure:"dir"`
	// BaseBranch is the branch task branches start from (default: "main",
	// falls back to HEAD when the branch does not exist)
	BaseBranch string `mapstructure:"base_branch"`
}

// BranchConfig controls branch naming conventions
type BranchConfig struct {
	// Prefix is the branch name prefix (default: "taskpilot")
	Prefix string `mapstructure:"prefix"`
}

// TaskConfig controls task execution behavior
type TaskConfig struct {
	// MaxAttempts is the total run attempt ceiling per task, auto-fix
	// cycles included (default: 3)
	MaxAttempts int `mapstructure:"max_attempts"`
	// ApprovalRequired gates every task behind an explicit approval
	// before it may run (default: true)
	ApprovalRequired bool `mapstructure:"approval_required"`
}

// RetentionConfig controls scheduled pruning of finished task records
type RetentionConfig struct {
	// Enabled turns the background prune scheduler on (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a cron expression for prune runs (default: "0 3 * * *")
	Schedule string `mapstructure:"schedule"`
	// MaxAgeHours is the minimum age before a finished task is pruned (default: 720)
	MaxAgeHours int `mapstructure:"max_age_hours"`
	// States limits pruning to these states (default: DONE, CANCELLED, FAILED)
	States []string `mapstructure:"states"`
}

// LoggingConfig controls structured log output
type LoggingConfig struct {
	// Enabled turns file logging on (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the log size at which rotation happens
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated logs to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where taskpilot keeps its state
type PathsConfig struct {
	// DataDir holds task records, reports and logs
	// (default: ~/.taskpilot)
	DataDir string `mapstructure:"data_dir"`
	// WorktreeDir holds per-task worktrees
	// (default: <data_dir>/worktrees)
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Repo: RepoConfig{
			Dir:        ".",
			BaseBranch: "main",
		},
		Branch: BranchConfig{
			Prefix: "taskpilot",
		},
		Task: TaskConfig{
			MaxAttempts:      3,
			ApprovalRequired: true,
		},
		Retention: RetentionConfig{
			Enabled:     false,
			Schedule:    "0 3 * * *", // daily at 03:00
			MaxAgeHours: 720,         // 30 days
			States:      []string{"DONE", "CANCELLED", "FAILED"},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			DataDir:     "", // Empty means use default: ~/.taskpilot
			WorktreeDir: "", // Empty means use default: <data_dir>/worktrees
		},
	}
}

// MaxAge returns the retention age as a time.Duration
func (c *RetentionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("repo.dir", defaults.Repo.Dir)
	viper.SetDefault("repo.base_branch", defaults.Repo.BaseBranch)

	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)

	viper.SetDefault("task.max_attempts", defaults.Task.MaxAttempts)
	viper.SetDefault("task.approval_required", defaults.Task.ApprovalRequired)

	viper.SetDefault("retention.enabled", defaults.Retention.Enabled)
	viper.SetDefault("retention.schedule", defaults.Retention.Schedule)
	viper.SetDefault("retention.max_age_hours", defaults.Retention.MaxAgeHours)
	viper.SetDefault("retention.states", defaults.Retention.States)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// DataDir returns the resolved data directory, applying the home-relative
// default when unset.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskpilot"
	}
	return filepath.Join(home, ".taskpilot")
}

// WorktreeDir returns the resolved worktree directory.
func (c *Config) WorktreeDir() string {
	if c.Paths.WorktreeDir != "" {
		return c.Paths.WorktreeDir
	}
	return filepath.Join(c.DataDir(), "worktrees")
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskpilot")
	}
	// Fall back to ~/.config/taskpilot
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskpilot"
	}
	return filepath.Join(home, ".config", "taskpilot")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
