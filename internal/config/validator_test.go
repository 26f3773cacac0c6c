package config

import (
	"strings"
	"testing"
)

func TestValidateBranchPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		valid  bool
	}{
		{"taskpilot", true},
		{"feature-bots", true},
		{"bot_42", true},
		{"", true}, // empty falls back at use sites
		{"9lives", false},
		{"has space", false},
		{"slash/bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			cfg := Default()
			cfg.Branch.Prefix = tt.prefix
			errs := cfg.Validate()
			if tt.valid && len(errs) > 0 {
				t.Errorf("prefix %q rejected: %v", tt.prefix, ValidationErrors(errs))
			}
			if !tt.valid && len(errs) == 0 {
				t.Errorf("prefix %q accepted, want rejection", tt.prefix)
			}
		})
	}
}

func TestValidateRetention(t *testing.T) {
	cfg := Default()
	cfg.Retention.Enabled = true
	cfg.Retention.Schedule = "not a cron line"

	errs := cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "retention.schedule" {
		t.Fatalf("errs = %v, want single retention.schedule error", errs)
	}

	cfg.Retention.Schedule = "*/30 * * * *"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("valid schedule rejected: %v", ValidationErrors(errs))
	}

	// Disabled retention skips schedule validation entirely.
	cfg.Retention.Enabled = false
	cfg.Retention.Schedule = "garbage"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("disabled retention still validated schedule: %v", ValidationErrors(errs))
	}
}

func TestValidateRetentionStates(t *testing.T) {
	cfg := Default()
	cfg.Retention.States = []string{"DONE", "LIMBO"}

	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want one unknown-state error", errs)
	}
	if errs[0].Field != "retention.states" || errs[0].Value != "LIMBO" {
		t.Errorf("err = %v, want retention.states/LIMBO", errs[0])
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "task.max_attempts", Value: 0, Message: "must be at least 1"},
		{Field: "logging.level", Value: "loud", Message: "must be one of: debug, info, warn, error"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("message %q missing count", msg)
	}
	if !strings.Contains(msg, "task.max_attempts") || !strings.Contains(msg, "logging.level") {
		t.Errorf("message %q missing fields", msg)
	}

	single := ValidationErrors{errs[0]}
	if strings.Contains(single.Error(), "validation errors") {
		t.Errorf("single error should not use the aggregate format: %q", single.Error())
	}
}
