package gates

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/domain"
)

func TestRunAll_RunsEveryGateDespiteFailures(t *testing.T) {
	r := &Runner{
		Gates: []config.GateConfig{
			{Name: "format", Command: "echo formatted"},
			{Name: "lint", Command: "echo 'lint error: unused var' >&2; exit 1"},
			{Name: "test", Command: "echo ok"},
		},
		Dir: t.TempDir(),
	}

	results, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (all gates must run)", len(results))
	}

	wantPassed := []bool{true, false, true}
	for i, res := range results {
		if res.Passed != wantPassed[i] {
			t.Errorf("gate %q: Passed = %v, want %v", res.Name, res.Passed, wantPassed[i])
		}
	}
	if !strings.Contains(results[1].Output, "lint error") {
		t.Errorf("failed gate output %q does not contain stderr", results[1].Output)
	}
}

func TestRunAll_GateTimeout(t *testing.T) {
	r := &Runner{
		Gates: []config.GateConfig{
			{Name: "slow", Command: "sleep 5"},
		},
		Dir:     t.TempDir(),
		Timeout: 50 * time.Millisecond,
	}

	results, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if results[0].Passed {
		t.Error("timed-out gate reported as passed")
	}
	if !strings.Contains(results[0].Output, "timed out") {
		t.Errorf("output %q does not mention the timeout", results[0].Output)
	}
}

func TestRunAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{
		Gates: []config.GateConfig{{Name: "never", Command: "echo hi"}},
		Dir:   t.TempDir(),
	}
	results, err := r.RunAll(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestBuildFeedback(t *testing.T) {
	results := []domain.GateResult{
		{Name: "format", Command: "make fmt", Passed: true, Output: "ok"},
		{Name: "lint", Command: "make lint", Passed: false, Output: "x.go:3: unused"},
		{Name: "test", Command: "make test", Passed: false, Output: strings.Repeat("F", 50)},
	}

	fb := BuildFeedback(results, 20)
	if strings.Contains(fb, "format") {
		t.Error("feedback includes a passing gate")
	}
	if !strings.Contains(fb, "Gate `lint` failed") || !strings.Contains(fb, "x.go:3: unused") {
		t.Errorf("feedback missing lint failure:\n%s", fb)
	}
	if !strings.Contains(fb, strings.Repeat("F", 20)+"\n...[truncated]") {
		t.Errorf("long output not clipped per item:\n%s", fb)
	}
	if strings.Contains(fb, strings.Repeat("F", 21)) {
		t.Error("clipped output longer than the per-item limit")
	}

	if got := BuildFeedback([]domain.GateResult{{Name: "a", Passed: true}}, 100); got != "" {
		t.Errorf("feedback for all-passing gates = %q, want empty", got)
	}
}

func TestClipText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 100, "short"},
		{"exactly", 7, "exactly"},
		{"overflows", 4, "over\n...[truncated]"},
		{"nolimit", 0, "nolimit"},
	}
	for _, tt := range tests {
		if got := ClipText(tt.in, tt.max); got != tt.want {
			t.Errorf("ClipText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
