// Package issues fetches and updates GitHub issues via the gh CLI.
package issues

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// Fetcher reads and mutates issues of one repository.
type Fetcher struct {
	repo string
}

// NewFetcher creates a Fetcher for the given repository slug (owner/name).
func NewFetcher(repo string) *Fetcher {
	return &Fetcher{repo: repo}
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (g ghIssue) toDomain() domain.Issue {
	labels := make([]string, 0, len(g.Labels))
	for _, l := range g.Labels {
		labels = append(labels, l.Name)
	}
	return domain.Issue{
		Number: g.Number,
		Title:  g.Title,
		Body:   g.Body,
		URL:    g.URL,
		State:  strings.ToLower(g.State),
		Labels: labels,
	}
}

// Fetch returns one issue by number.
func (f *Fetcher) Fetch(number int) (domain.Issue, error) {
	// gh issue view 42 --repo owner/repo --json number,title,body,url,state,labels
	output, err := exec.Command("gh", "issue", "view", fmt.Sprintf("%d", number),
		"--repo", f.repo,
		"--json", "number,title,body,url,state,labels").Output()
	if err != nil {
		return domain.Issue{}, fmt.Errorf("gh issue view #%d: %w", number, err)
	}

	var gi ghIssue
	if err := json.Unmarshal(output, &gi); err != nil {
		return domain.Issue{}, fmt.Errorf("parse gh output: %w", err)
	}
	return gi.toDomain(), nil
}

// ListCandidates returns open issues carrying the candidate label, oldest
// first, skipping any that also carry a skip label.
func (f *Fetcher) ListCandidates(candidateLabel string, skipLabels ...string) ([]domain.Issue, error) {
	output, err := exec.Command("gh", "issue", "list",
		"--repo", f.repo,
		"--state", "open",
		"--label", candidateLabel,
		"--json", "number,title,body,url,state,labels",
		"--limit", "100").Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	var ghIssues []ghIssue
	if err := json.Unmarshal(output, &ghIssues); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	var out []domain.Issue
	for _, gi := range ghIssues {
		issue := gi.toDomain()
		skip := false
		for _, l := range skipLabels {
			if issue.HasLabel(l) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, issue)
		}
	}
	return out, nil
}

// PostComment posts a comment on an issue.
func (f *Fetcher) PostComment(number int, body string) error {
	cmd := exec.Command("gh", "issue", "comment", fmt.Sprintf("%d", number),
		"--repo", f.repo, "--body", body)
	return cmd.Run()
}

// CloseIssue closes an issue as completed.
func (f *Fetcher) CloseIssue(number int) error {
	cmd := exec.Command("gh", "issue", "close", fmt.Sprintf("%d", number),
		"--repo", f.repo, "--reason", "completed")
	return cmd.Run()
}

// BuildResultComment creates the comment posted on an issue when a run
// finishes, successful or not.
func BuildResultComment(res *domain.RunResult) string {
	var sb strings.Builder

	if res.Outcome.Success() {
		sb.WriteString(fmt.Sprintf("✅ **Pull request opened: %s**\n\n", res.PRURL))
	} else {
		sb.WriteString(fmt.Sprintf("❌ **Pipeline run failed: %s**\n\n", res.Outcome))
	}

	sb.WriteString(fmt.Sprintf("**Result:** %s\n", res.Summary()))
	if len(res.FailingGates) > 0 {
		sb.WriteString(fmt.Sprintf("**Failing gates:** %s\n", strings.Join(res.FailingGates, ", ")))
	}
	if res.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", res.Error))
	}

	sb.WriteString("\n---\n")
	sb.WriteString("*Posted by FlowSmith*\n")

	return sb.String()
}
