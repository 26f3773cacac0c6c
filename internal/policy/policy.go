// Package policy enforces a plan's file-change constraints against the set
// of files an execution actually touched. Enforcement is stateless and
// deterministic: the same inputs always produce the same verdict.
package policy

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/pilotcrew/taskpilot/internal/errors"
	"github.com/pilotcrew/taskpilot/internal/task"
)

// Enforce checks changedFiles against the constraints and returns a
// PolicyError on the first violation found, in this order:
//
//  1. more files changed than MaxFilesChanged allows,
//  2. any path matching a forbidden glob (deny wins over allow),
//  3. an allow-list is declared and a path matches none of it.
//
// Matching is glob-style, case-sensitive, with '/' as the separator;
// back-slashes in paths are normalized to forward slashes first.
func Enforce(changedFiles []string, c task.Constraints) error {
	if c.MaxFilesChanged > 0 && len(changedFiles) > c.MaxFilesChanged {
		return errors.NewPolicyError("",
			fmt.Sprintf("max_files_changed=%d", c.MaxFilesChanged),
			fmt.Sprintf("%d files changed", len(changedFiles)))
	}

	forbidden, err := compileAll(c.ForbiddenPaths)
	if err != nil {
		return err
	}
	allowed, err := compileAll(c.AllowedPaths)
	if err != nil {
		return err
	}

	for _, file := range changedFiles {
		path := normalize(file)

		for i, g := range forbidden {
			if g.Match(path) {
				return errors.NewPolicyError(path, c.ForbiddenPaths[i],
					"path matches forbidden pattern")
			}
		}

		if len(allowed) > 0 && !matchesAny(allowed, path) {
			return errors.NewPolicyError(path,
				strings.Join(c.AllowedPaths, ","),
				"path outside allowed patterns")
		}
	}

	return nil
}

// compileAll compiles patterns with '/' as separator so '*' does not cross
// directory boundaries while '**' does.
func compileAll(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(normalize(p), '/')
		if err != nil {
			return nil, errors.NewPolicyError("", p, fmt.Sprintf("invalid pattern: %v", err))
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// normalize treats back-slashes as path separators and strips a leading
// "./" so patterns written either way agree.
func normalize(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.TrimPrefix(path, "./")
}
