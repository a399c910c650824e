package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// HasChanges reports whether the worktree has uncommitted changes,
// including untracked files.
func HasChanges(wtPath string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = wtPath
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// CommitAll stages everything in the worktree and commits it. Returns false
// without error when there was nothing to commit.
func CommitAll(wtPath, message string) (bool, error) {
	dirty, err := HasChanges(wtPath)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	cmd := exec.Command("git", "add", "-A")
	cmd.Dir = wtPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return false, fmt.Errorf("git add: %s: %w", out, err)
	}

	cmd = exec.Command("git", "commit", "-m", message)
	cmd.Dir = wtPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return false, fmt.Errorf("git commit: %s: %w", out, err)
	}
	return true, nil
}

// Push pushes the worktree's branch to origin, setting the upstream
func Push(wtPath, branch string) error {
	cmd := exec.Command("git", "push", "-u", "origin", branch)
	cmd.Dir = wtPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git push: %s: %w", out, err)
	}
	return nil
}

// Diff returns the diff of the worktree's branch against the base branch
func Diff(wtPath, baseBranch string) (string, error) {
	cmd := exec.Command("git", "diff", baseBranch+"...HEAD")
	cmd.Dir = wtPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}
