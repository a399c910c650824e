// Package gitops manages the git side of a run: an isolated worktree per
// run, committing the coder's changes, and pushing the branch.
package gitops

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WorktreeManager handles git worktree operations
type WorktreeManager struct {
	repoDir     string
	worktreeDir string
	baseBranch  string
}

// NewWorktreeManager creates a new WorktreeManager
func NewWorktreeManager(repoDir, worktreeDir, baseBranch string) *WorktreeManager {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &WorktreeManager{
		repoDir:     repoDir,
		worktreeDir: worktreeDir,
		baseBranch:  baseBranch,
	}
}

// Create creates a new worktree on a fresh branch for one run.
// If an existing worktree or branch exists for this branch, it will be cleaned up first.
func (m *WorktreeManager) Create(branch string) (string, error) {
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return "", fmt.Errorf("creating worktree dir: %w", err)
	}

	if err := m.cleanupExistingBranch(branch); err != nil {
		return "", fmt.Errorf("cleaning up existing branch: %w", err)
	}

	dirName := strings.ReplaceAll(branch, "/", "-") + "-" + randomSuffix()
	wtPath := filepath.Join(m.worktreeDir, dirName)

	// Fetch latest from origin first (if remote exists)
	fetchCmd := exec.Command("git", "fetch", "origin", m.baseBranch)
	fetchCmd.Dir = m.repoDir
	fetchCmd.Run() // Ignore error - remote might not exist in tests

	// Base on origin/<base> when it exists, fall back to the local branch, then HEAD
	base := "origin/" + m.baseBranch
	if !m.refExists(base) {
		base = m.baseBranch
		if !m.refExists(base) {
			base = "HEAD"
		}
	}

	cmd := exec.Command("git", "worktree", "add", "-b", branch, wtPath, base)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git worktree add: %s: %w", out, err)
	}

	return wtPath, nil
}

func (m *WorktreeManager) refExists(ref string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", ref)
	cmd.Dir = m.repoDir
	return cmd.Run() == nil
}

// cleanupExistingBranch removes any existing worktree and branch for the given branch name
func (m *WorktreeManager) cleanupExistingBranch(branch string) error {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = m.repoDir
	cmd.Run()

	cmd = exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	out, _ := cmd.Output()

	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "worktree ") {
			wtPath := strings.TrimPrefix(line, "worktree ")
			for j := i + 1; j < len(lines) && j < i+4; j++ {
				if strings.TrimSpace(lines[j]) == "branch refs/heads/"+branch {
					rmCmd := exec.Command("git", "worktree", "remove", "--force", wtPath)
					rmCmd.Dir = m.repoDir
					rmCmd.Run() // Ignore error
					break
				}
			}
		}
	}

	// Handles orphan branches from previous runs
	cmd = exec.Command("git", "branch", "-D", branch)
	cmd.Dir = m.repoDir
	cmd.Run() // Ignore error - branch might not exist

	return nil
}

// Remove removes a worktree and deletes its branch
func (m *WorktreeManager) Remove(wtPath string) error {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = wtPath
	branchOut, _ := cmd.Output()
	branch := strings.TrimSpace(string(branchOut))

	cmd = exec.Command("git", "worktree", "remove", "--force", wtPath)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %s: %w", out, err)
	}

	if branch != "" && branch != "HEAD" {
		cmd = exec.Command("git", "branch", "-D", branch)
		cmd.Dir = m.repoDir
		cmd.Run() // Ignore error if branch doesn't exist
	}

	return nil
}

// List returns all active worktree paths under the managed directory
func (m *WorktreeManager) List() ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			path := strings.TrimPrefix(line, "worktree ")
			if strings.HasPrefix(path, m.worktreeDir) {
				paths = append(paths, path)
			}
		}
	}

	return paths, nil
}

func randomSuffix() string {
	b := make([]byte, 3)
	rand.Read(b)
	return hex.EncodeToString(b)
}
