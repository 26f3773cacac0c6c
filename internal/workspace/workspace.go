// Package workspace provisions an isolated git worktree per task so that
// generated changes never touch the primary checkout. Each task gets its
// own branch and working directory derived from the task id and title.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/logging"
)

// Workspace describes a provisioned worktree.
type Workspace struct {
	// Path is the absolute path to the worktree directory.
	Path string
	// Branch is the branch the worktree is checked out on.
	Branch string
	// BaseBranch is the branch the worktree's branch was created from.
	BaseBranch string
}

// runner executes a git subcommand in dir and returns its combined
// output. Swapped out in tests so no real repository is required.
type runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func gitRun(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Manager handles git worktree operations for one repository.
type Manager struct {
	repoDir     string
	worktreeDir string
	logger      *logging.Logger
	run         runner
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. It returns the directory containing .git, which can be a
// directory (normal repo) or a file (worktree).
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no .git found from %s up to mount point", errors.ErrNotGitRepository, startDir)
		}
		dir = parent
	}
}

// New creates a Manager for the repository containing repoDir. Worktrees
// are placed under worktreeDir, which is created on first use.
func New(repoDir, worktreeDir string, logger *logging.Logger) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	// Worktree paths are handed to git with the repo root as working
	// directory, so a relative worktreeDir must be pinned here.
	absWorktreeDir, err := filepath.Abs(worktreeDir)
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to resolve worktree root", err).WithPath(worktreeDir)
	}
	return &Manager{
		repoDir:     gitRoot,
		worktreeDir: absWorktreeDir,
		logger:      logger.WithComponent("workspace"),
		run:         gitRun,
	}, nil
}

// RepoDir returns the resolved repository root.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// Create provisions a worktree for the task: a new branch
// {branchPrefix}/{slug} starting from baseBranch, checked out under the
// worktree directory. baseBranch falls back to HEAD when it cannot be
// resolved. Creating over an existing path fails with ErrWorkspaceExists.
func (m *Manager) Create(ctx context.Context, taskID, title, baseBranch, branchPrefix string) (*Workspace, error) {
	slug := Slug(taskID, title)
	path := filepath.Join(m.worktreeDir, slug)

	if _, err := os.Stat(path); err == nil {
		return nil, errors.NewWorkspaceError("path already in use", errors.ErrWorkspaceExists).WithPath(path)
	}
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return nil, errors.NewWorkspaceError("failed to create worktree root", err).WithPath(m.worktreeDir)
	}

	base := m.resolveBase(ctx, baseBranch)
	branch := branchPrefix + "/" + slug

	output, err := m.run(ctx, m.repoDir, "worktree", "add", "-b", branch, path, base)
	if err != nil {
		return nil, errors.NewWorkspaceError(
			fmt.Sprintf("failed to create worktree from %s", base), err).
			WithPath(path).
			WithOutput(string(output))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	m.logger.Info("workspace created",
		"task_id", taskID,
		"path", abs,
		"branch", branch,
		"base", base)

	return &Workspace{Path: abs, Branch: branch, BaseBranch: base}, nil
}

// resolveBase verifies the requested base branch exists, falling back to
// HEAD so a missing or unset base never blocks provisioning.
func (m *Manager) resolveBase(ctx context.Context, baseBranch string) string {
	if baseBranch == "" {
		return "HEAD"
	}
	if _, err := m.run(ctx, m.repoDir, "rev-parse", "--verify", baseBranch); err != nil {
		m.logger.Warn("base branch not found, falling back to HEAD", "base", baseBranch)
		return "HEAD"
	}
	return baseBranch
}

// Remove removes a worktree. A path that no longer exists is a no-op.
// Without force, a refusal from git (typically a dirty worktree) is
// surfaced and the directory is left untouched. With force, a refusal
// falls back to removing the directory manually and pruning stale
// worktree references before reporting the failure.
func (m *Manager) Remove(ctx context.Context, path string, force bool) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if output, err := m.run(ctx, m.repoDir, args...); err != nil {
		if force {
			_ = os.RemoveAll(path)
			_, _ = m.run(ctx, m.repoDir, "worktree", "prune")
		}
		return errors.NewWorkspaceError("failed to remove worktree cleanly", err).
			WithPath(path).
			WithOutput(string(output))
	}

	return nil
}

// List returns the paths of all worktrees attached to the repository.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	output, err := m.run(ctx, m.repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to list worktrees", err).WithOutput(string(output))
	}

	var worktrees []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			worktrees = append(worktrees, strings.TrimPrefix(line, "worktree "))
		}
	}
	return worktrees, nil
}

// ChangedFiles returns the files changed in the worktree's branch
// relative to base, using three-dot syntax so only the branch's own
// changes count.
func (m *Manager) ChangedFiles(ctx context.Context, path, base string) ([]string, error) {
	output, err := m.run(ctx, path, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to get changed files", err).
			WithPath(path).
			WithOutput(string(output))
	}

	lines := strings.TrimSpace(string(output))
	if lines == "" {
		return []string{}, nil
	}
	return strings.Split(lines, "\n"), nil
}
