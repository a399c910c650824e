// Package prbot opens and manages pull requests for finished runs via the
// gh CLI, and decides how much human attention each one needs.
package prbot

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// PRBot handles PR creation and management for one repository
type PRBot struct {
	repo    string
	repoDir string
}

// NewPRBot creates a new PRBot
func NewPRBot(repo, repoDir string) *PRBot {
	return &PRBot{repo: repo, repoDir: repoDir}
}

// CreateOrUpdate opens a pull request for a pushed branch, or updates the
// body of an existing open PR for the same branch. Returns the PR number
// and URL.
func (p *PRBot) CreateOrUpdate(branch, base, title, body string) (int, string, error) {
	cmd := exec.Command("gh", "pr", "create",
		"--repo", p.repo,
		"--head", branch,
		"--base", base,
		"--title", title,
		"--body", body,
	)
	cmd.Dir = p.repoDir
	out, err := cmd.CombinedOutput()
	if err == nil {
		url := strings.TrimSpace(string(out))
		return extractPRNumber(url), url, nil
	}

	if !strings.Contains(string(out), "already exists") {
		return 0, "", fmt.Errorf("gh pr create: %s: %w", out, err)
	}

	// A PR for this branch is already open (a previous run for the same
	// issue); refresh its body instead.
	num, url, viewErr := p.view(branch)
	if viewErr != nil {
		return 0, "", viewErr
	}
	edit := exec.Command("gh", "pr", "edit", fmt.Sprintf("%d", num),
		"--repo", p.repo,
		"--title", title,
		"--body", body,
	)
	edit.Dir = p.repoDir
	if editOut, err := edit.CombinedOutput(); err != nil {
		return 0, "", fmt.Errorf("gh pr edit: %s: %w", editOut, err)
	}
	return num, url, nil
}

func (p *PRBot) view(branch string) (int, string, error) {
	cmd := exec.Command("gh", "pr", "view", branch,
		"--repo", p.repo,
		"--json", "number,url")
	cmd.Dir = p.repoDir
	out, err := cmd.Output()
	if err != nil {
		return 0, "", fmt.Errorf("gh pr view %s: %w", branch, err)
	}
	var pr struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(out, &pr); err != nil {
		return 0, "", fmt.Errorf("parse gh pr view output: %w", err)
	}
	return pr.Number, pr.URL, nil
}

// AddLabels adds labels to a PR
func (p *PRBot) AddLabels(prNumber int, labels []string) error {
	args := []string{"pr", "edit", fmt.Sprintf("%d", prNumber), "--repo", p.repo}
	for _, label := range labels {
		args = append(args, "--add-label", label)
	}

	cmd := exec.Command("gh", args...)
	cmd.Dir = p.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gh pr edit: %s: %w", out, err)
	}
	return nil
}

// MergePR merges a PR with squash
func (p *PRBot) MergePR(prNumber int) error {
	cmd := exec.Command("gh", "pr", "merge", fmt.Sprintf("%d", prNumber),
		"--repo", p.repo,
		"--squash",
		"--delete-branch",
	)
	cmd.Dir = p.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gh pr merge: %s: %w", out, err)
	}
	return nil
}

// GetDiff gets the diff for a PR
func (p *PRBot) GetDiff(prNumber int) (string, error) {
	cmd := exec.Command("gh", "pr", "diff", fmt.Sprintf("%d", prNumber), "--repo", p.repo)
	cmd.Dir = p.repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractPRNumber(url string) int {
	// URL format: https://github.com/owner/repo/pull/123
	parts := strings.Split(url, "/")
	if len(parts) > 0 {
		var num int
		fmt.Sscanf(parts[len(parts)-1], "%d", &num)
		return num
	}
	return 0
}
