// Package store provides crash-safe, per-key-serialized persistence for
// task records. Each task lives in its own JSON file under the store
// directory; writes go to a uniquely named temporary file that is atomically
// renamed over the final location, so a reader never observes a partial
// record.
//
// Mutating operations on the same task id are serialized through a per-key
// lock; operations on different ids proceed independently. A drained key's
// lock entry is removed rather than retained indefinitely.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/logging"
	"github.com/pilotcrew/taskpilot/internal/task"
)

const (
	tasksDir   = "tasks"
	reportsDir = "reports"
)

// Store is a file-backed task store. It is safe for concurrent use.
type Store struct {
	baseDir string
	logger  *logging.Logger

	mu   sync.Mutex
	keys map[string]*keyLock
}

// keyLock serializes writers for one task id. refs counts lockers so the
// entry can be dropped once drained.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Store rooted at baseDir, creating the directory layout if
// needed.
func New(baseDir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	for _, d := range []string{tasksDir, reportsDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &Store{
		baseDir: baseDir,
		logger:  logger.WithComponent("store"),
		keys:    make(map[string]*keyLock),
	}, nil
}

// lockKey acquires the per-key lock for id and returns its release func.
func (s *Store) lockKey(id string) func() {
	s.mu.Lock()
	kl, ok := s.keys[id]
	if !ok {
		kl = &keyLock{}
		s.keys[id] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		s.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(s.keys, id)
		}
		s.mu.Unlock()
	}
}

// Save persists the task record atomically. Concurrent saves for the same
// id are serialized in arrival order; saves for different ids do not block
// each other.
func (s *Store) Save(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	unlock := s.lockKey(t.ID)
	defer unlock()

	return atomicWriteFile(s.taskPath(t.ID), data, 0644)
}

// Get returns the task record for id, or a NotFoundError. A record that
// exists but cannot be decoded is a hard failure for Get.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.taskPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("task", id)
		}
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	t, err := decodeTask(data)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

// List returns all readable task records, newest-updated first. Records
// that cannot be read or decoded are skipped and logged; they never fail
// the listing.
func (s *Store) List(ctx context.Context) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.baseDir, tasksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	var tasks []*task.Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, tasksDir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable task record", "file", entry.Name(), "error", err.Error())
			continue
		}
		t, err := decodeTask(data)
		if err != nil {
			s.logger.Warn("skipping corrupt task record", "file", entry.Name(), "error", err.Error())
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

// Delete removes the task record for id. Returns a NotFoundError when no
// record exists.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockKey(id)
	defer unlock()

	if err := os.Remove(s.taskPath(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("task", id)
		}
		return fmt.Errorf("failed to delete task file: %w", err)
	}
	return nil
}

// taskPath returns the record path for a task id.
func (s *Store) taskPath(id string) string {
	return filepath.Join(s.baseDir, tasksDir, id+".json")
}

// decodeTask is the single versioned deserialization point for at-rest
// task records. Missing optional fields take their documented defaults:
// state NEW, max attempts DefaultMaxAttempts, updated_at falls back to
// created_at. A record without an id is corrupt.
func decodeTask(data []byte) (*task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTaskCorrupted, err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%w: missing task id", errors.ErrTaskCorrupted)
	}
	if t.State == "" {
		t.State = task.StateNew
	}
	if _, ok := task.ParseState(string(t.State)); !ok {
		return nil, fmt.Errorf("%w: unknown state %q", errors.ErrTaskCorrupted, t.State)
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = task.DefaultMaxAttempts
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	return &t, nil
}

// atomicWriteFile writes data to path by writing a uniquely named temporary
// file in the same directory, syncing it, then renaming it over the target.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
