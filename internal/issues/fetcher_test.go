package issues

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/flowsmith/flowsmith/internal/domain"
)

func TestGHIssueToDomain(t *testing.T) {
	raw := `{
		"number": 42,
		"title": "Add retry logic",
		"body": "The billing export gives up on the first 5xx.",
		"url": "https://github.com/org/repo/issues/42",
		"state": "OPEN",
		"labels": [{"name": "agent/service:billing"}, {"name": "bug"}]
	}`

	var gi ghIssue
	if err := json.Unmarshal([]byte(raw), &gi); err != nil {
		t.Fatal(err)
	}

	issue := gi.toDomain()
	if issue.Number != 42 {
		t.Errorf("Number = %d, want 42", issue.Number)
	}
	if issue.State != "open" {
		t.Errorf("State = %q, want open", issue.State)
	}
	if !issue.HasLabel("bug") {
		t.Error("labels not carried over")
	}
	if got := issue.LabelWithPrefix("agent/service:"); got != "agent/service:billing" {
		t.Errorf("LabelWithPrefix = %q", got)
	}
}

func TestBuildResultComment(t *testing.T) {
	success := &domain.RunResult{
		Issue:        domain.Issue{Number: 7},
		Outcome:      domain.OutcomeSucceeded,
		FinalAttempt: 2,
		PRURL:        "https://github.com/org/repo/pull/99",
	}
	got := BuildResultComment(success)
	if !strings.Contains(got, "Pull request opened") || !strings.Contains(got, "pull/99") {
		t.Errorf("success comment missing PR link:\n%s", got)
	}

	failed := &domain.RunResult{
		Issue:        domain.Issue{Number: 7},
		Outcome:      domain.OutcomeExhaustedRetries,
		FinalAttempt: 3,
		FailingGates: []string{"lint", "test"},
	}
	got = BuildResultComment(failed)
	if !strings.Contains(got, "Pipeline run failed") {
		t.Errorf("failure comment missing header:\n%s", got)
	}
	if !strings.Contains(got, "lint, test") {
		t.Errorf("failure comment missing gate names:\n%s", got)
	}
}
