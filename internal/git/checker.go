// Package git checks how a workspace's files are tracked by Git.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Checker runs Git queries in one directory
type Checker struct {
	dir string
}

// NewChecker creates a Git checker for dir
func NewChecker(dir string) *Checker {
	return &Checker{dir: dir}
}

// IsGitRepository checks if the directory is within a Git repository
func (c *Checker) IsGitRepository() (bool, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = c.dir
	err := cmd.Run()
	if err != nil {
		// Check if error is because git command not found
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return false, fmt.Errorf("git not found in PATH")
		}
		// Not in a Git repository
		return false, nil
	}
	return true, nil
}

// IsIgnored reports whether path, relative to the directory, is ignored by
// the repository's ignore rules.
func (c *Checker) IsIgnored(path string) (bool, error) {
	cmd := exec.Command("git", "check-ignore", "-q", path)
	cmd.Dir = c.dir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	// Exit status 1 means the path is not ignored
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to check %s against .gitignore: %w", path, err)
}

// IsTracked reports whether path is already committed or staged
func (c *Checker) IsTracked(path string) (bool, error) {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = c.dir
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to list tracked files: %w", err)
	}
	return strings.TrimSpace(string(output)) != "", nil
}
