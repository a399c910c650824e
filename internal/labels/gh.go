package labels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const listLimit = "100"

// GHStore implements Store against GitHub via the gh CLI
type GHStore struct {
	repo string
}

// NewGHStore creates a label store for the given repository slug (owner/name)
func NewGHStore(repo string) *GHStore {
	return &GHStore{repo: repo}
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghIssue struct {
	Number    int       `json:"number"`
	UpdatedAt time.Time `json:"updatedAt"`
	Labels    []ghLabel `json:"labels"`
}

type ghComment struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLabels returns the current labels of an issue
func (s *GHStore) ListLabels(issue int) ([]string, error) {
	out, err := exec.Command("gh", "issue", "view", fmt.Sprintf("%d", issue),
		"--repo", s.repo,
		"--json", "number,updatedAt,labels").Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue view #%d: %w", issue, err)
	}

	var gi ghIssue
	if err := json.Unmarshal(out, &gi); err != nil {
		return nil, fmt.Errorf("parse gh issue view output: %w", err)
	}
	return labelNames(gi.Labels), nil
}

// AddLabel adds a label to an issue
func (s *GHStore) AddLabel(issue int, label string) error {
	out, err := exec.Command("gh", "issue", "edit", fmt.Sprintf("%d", issue),
		"--repo", s.repo,
		"--add-label", label).CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh add label %q to #%d: %s: %w", label, issue, out, err)
	}
	return nil
}

// RemoveLabel removes a label from an issue; removing an absent label is a no-op
func (s *GHStore) RemoveLabel(issue int, label string) error {
	out, err := exec.Command("gh", "issue", "edit", fmt.Sprintf("%d", issue),
		"--repo", s.repo,
		"--remove-label", label).CombinedOutput()
	if err == nil {
		return nil
	}
	if isMissingLabelError(string(out)) {
		return nil
	}
	return fmt.Errorf("gh remove label %q from #%d: %s: %w", label, issue, out, err)
}

// EnsureLabel creates the label in the repository if it does not exist
func (s *GHStore) EnsureLabel(label string) error {
	out, err := exec.Command("gh", "label", "create", label,
		"--repo", s.repo,
		"--color", "A8E6CF",
		"--description", "FlowSmith lock label").CombinedOutput()
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(string(out)), "already exists") {
		return nil
	}
	return fmt.Errorf("gh label create %q: %s: %w", label, out, err)
}

// ListOpenIssuesWithLabel returns all open issues carrying the label
func (s *GHStore) ListOpenIssuesWithLabel(label string) ([]LabeledIssue, error) {
	out, err := exec.Command("gh", "issue", "list",
		"--repo", s.repo,
		"--state", "open",
		"--label", label,
		"--limit", listLimit,
		"--json", "number,updatedAt,labels").Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue list --label %q: %w", label, err)
	}

	var ghIssues []ghIssue
	if err := json.Unmarshal(out, &ghIssues); err != nil {
		return nil, fmt.Errorf("parse gh issue list output: %w", err)
	}

	issues := make([]LabeledIssue, 0, len(ghIssues))
	for _, gi := range ghIssues {
		if gi.Number <= 0 {
			continue
		}
		issues = append(issues, LabeledIssue{
			Number:    gi.Number,
			UpdatedAt: gi.UpdatedAt,
			Labels:    labelNames(gi.Labels),
		})
	}
	return issues, nil
}

// ListComments returns an issue's comments in creation order. Paginated, so
// cooldown and acquire markers stay visible on long comment threads.
func (s *GHStore) ListComments(issue int) ([]Comment, error) {
	out, err := exec.Command("gh", "api", "--paginate",
		fmt.Sprintf("repos/%s/issues/%d/comments?per_page=100", s.repo, issue)).Output()
	if err != nil {
		return nil, fmt.Errorf("gh api issue #%d comments: %w", issue, err)
	}
	return parseCommentPages(out)
}

// parseCommentPages decodes gh api --paginate output, which concatenates one
// JSON array per page.
func parseCommentPages(out []byte) ([]Comment, error) {
	var comments []Comment
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var page []ghComment
		if err := dec.Decode(&page); err != nil {
			return nil, fmt.Errorf("parse gh comments output: %w", err)
		}
		for _, c := range page {
			comments = append(comments, Comment{Body: c.Body, CreatedAt: c.CreatedAt})
		}
	}
	return comments, nil
}

// PostComment appends a comment to an issue
func (s *GHStore) PostComment(issue int, body string) error {
	out, err := exec.Command("gh", "issue", "comment", fmt.Sprintf("%d", issue),
		"--repo", s.repo,
		"--body", body).CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh issue comment #%d: %s: %w", issue, out, err)
	}
	return nil
}

func labelNames(ls []ghLabel) []string {
	names := make([]string, 0, len(ls))
	for _, l := range ls {
		name := strings.TrimSpace(l.Name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func isMissingLabelError(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "no such label") ||
		strings.Contains(lower, "does not have label")
}
