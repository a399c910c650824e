package domain

import "testing"

func TestAttempt_Passed(t *testing.T) {
	tests := []struct {
		name  string
		gates []GateResult
		want  bool
	}{
		{"no gates", nil, true},
		{"all pass", []GateResult{{Name: "lint", Passed: true}, {Name: "test", Passed: true}}, true},
		{"one fails", []GateResult{{Name: "lint", Passed: true}, {Name: "test", Passed: false}}, false},
	}

	for _, tt := range tests {
		a := Attempt{Gates: tt.gates}
		if got := a.Passed(); got != tt.want {
			t.Errorf("%s: Passed() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAttempt_FailedGateNames(t *testing.T) {
	a := Attempt{Gates: []GateResult{
		{Name: "lint", Passed: false},
		{Name: "typecheck", Passed: true},
		{Name: "test", Passed: false},
	}}

	got := a.FailedGateNames()
	want := []string{"lint", "test"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIssue_LabelWithPrefix(t *testing.T) {
	issue := Issue{Labels: []string{"bug", "agent/service:web", "agent/service:api", "agent/op:restart"}}

	if got := issue.LabelWithPrefix("agent/service:"); got != "agent/service:api" {
		t.Errorf("got %q, want agent/service:api", got)
	}
	if got := issue.LabelWithPrefix("agent/op:"); got != "agent/op:restart" {
		t.Errorf("got %q, want agent/op:restart", got)
	}
	if got := issue.LabelWithPrefix("missing:"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRunResult_Summary(t *testing.T) {
	r := RunResult{
		Issue:        Issue{Number: 42},
		Outcome:      OutcomeExhaustedRetries,
		FinalAttempt: 3,
		FailingGates: []string{"test", "build"},
	}

	got := r.Summary()
	want := "issue #42 exhausted-retries (attempt 3) failing: test, build"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
