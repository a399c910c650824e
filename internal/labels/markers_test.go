package labels

import (
	"testing"
	"time"
)

func TestLatestOperationTime(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	comments := []Comment{
		{Body: "unrelated discussion"},
		{Body: FormatOperationMarker("agent/service:api", "agent/op:restart", t1)},
		{Body: FormatOperationMarker("agent/service:api", "agent/op:restart", t2)},
		{Body: FormatOperationMarker("agent/service:web", "agent/op:restart", t2.Add(time.Hour))},
	}

	got := LatestOperationTime(comments, "agent/service:api", "agent/op:restart")
	if !got.Equal(t2) {
		t.Errorf("got %v, want %v", got, t2)
	}

	if got := LatestOperationTime(comments, "agent/service:db", "agent/op:restart"); !got.IsZero() {
		t.Errorf("got %v for absent record, want zero", got)
	}
}

func TestLatestAcquiredTime(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)

	comments := []Comment{
		{Body: FormatAcquiredMarker("abc123", t1)},
		{Body: "a human comment"},
		{Body: FormatAcquiredMarker("def456", t2)},
	}

	if got := LatestAcquiredTime(comments); !got.Equal(t2) {
		t.Errorf("got %v, want %v", got, t2)
	}
	if got := LatestAcquiredTime(nil); !got.IsZero() {
		t.Errorf("got %v for no comments, want zero", got)
	}
}

func TestMarkerRoundTrip_IgnoresMalformed(t *testing.T) {
	comments := []Comment{
		{Body: "<!-- flowsmith-operation-log service=s operation=o executed_at=not-a-time -->"},
	}
	if got := LatestOperationTime(comments, "s", "o"); !got.IsZero() {
		t.Errorf("got %v for malformed timestamp, want zero", got)
	}
}

func TestIsMissingLabelError(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"label not found", true},
		{"issue does not have label agent/running", true},
		{"GraphQL: something broke", false},
	}
	for _, tt := range tests {
		if got := isMissingLabelError(tt.out); got != tt.want {
			t.Errorf("isMissingLabelError(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}
