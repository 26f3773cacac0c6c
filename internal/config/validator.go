package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "task.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
// Branch names should start with alphanumeric and can contain alphanumeric, hyphen, underscore
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validateTask()...)
	errors = append(errors, c.validateRetention()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateBranch validates the BranchConfig
func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if c.Branch.Prefix != "" && !branchPrefixRegex.MatchString(c.Branch.Prefix) {
		errors = append(errors, ValidationError{
			Field:   "branch.prefix",
			Value:   c.Branch.Prefix,
			Message: "must start with a letter and contain only letters, digits, hyphens and underscores",
		})
	}

	return errors
}

// validateTask validates the TaskConfig
func (c *Config) validateTask() []ValidationError {
	var errors []ValidationError

	if c.Task.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "task.max_attempts",
			Value:   c.Task.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateRetention validates the RetentionConfig
func (c *Config) validateRetention() []ValidationError {
	var errors []ValidationError

	if c.Retention.Enabled {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			errors = append(errors, ValidationError{
				Field:   "retention.schedule",
				Value:   c.Retention.Schedule,
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if c.Retention.MaxAgeHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "retention.max_age_hours",
			Value:   c.Retention.MaxAgeHours,
			Message: "must be non-negative",
		})
	}
	for _, s := range c.Retention.States {
		if _, ok := task.ParseState(s); !ok {
			errors = append(errors, ValidationError{
				Field:   "retention.states",
				Value:   s,
				Message: "unknown task state",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
