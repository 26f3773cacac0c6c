package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// TestReport is the structured record of one test pass over a task's
// workspace: every executed TEST step in declared order with its outcome.
type TestReport struct {
	TaskID    string            `json:"task_id"`
	Attempt   int               `json:"attempt"`
	Passed    bool              `json:"passed"`
	Results   []task.TestResult `json:"results"`
	CreatedAt time.Time         `json:"created_at"`
}

// SaveReport persists a test report alongside the task records and returns
// a reference usable as the task's test-report artifact.
func (s *Store) SaveReport(ctx context.Context, report TestReport) (string, error) {
	if report.TaskID == "" {
		return "", fmt.Errorf("report task id cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal test report: %w", err)
	}

	name := fmt.Sprintf("%s-attempt-%d.json", report.TaskID, report.Attempt)
	path := filepath.Join(s.baseDir, reportsDir, name)
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return filepath.Join(reportsDir, name), nil
}

// LoadReport reads a test report by the reference SaveReport returned.
func (s *Store) LoadReport(ctx context.Context, ref string) (*TestReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := readFileUnder(s.baseDir, ref)
	if err != nil {
		return nil, err
	}
	var report TestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode test report: %w", err)
	}
	return &report, nil
}

// readFileUnder reads a file referenced relative to base, rejecting
// references that would escape it.
func readFileUnder(base, ref string) ([]byte, error) {
	if ref == "" || strings.Contains(ref, "..") {
		return nil, fmt.Errorf("invalid artifact reference %q", ref)
	}
	return os.ReadFile(filepath.Join(base, filepath.FromSlash(ref)))
}
