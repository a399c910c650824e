package labels

import (
	"testing"
	"time"
)

func TestParseCommentPages(t *testing.T) {
	// gh api --paginate emits one JSON array per page, concatenated.
	out := []byte(`[
		{"body": "first", "created_at": "2026-03-01T10:00:00Z"},
		{"body": "second", "created_at": "2026-03-01T11:00:00Z"}
	]
	[
		{"body": "third", "created_at": "2026-03-01T12:00:00Z"}
	]`)

	comments, err := parseCommentPages(out)
	if err != nil {
		t.Fatalf("parseCommentPages: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("got %d comments, want 3 across pages", len(comments))
	}
	if comments[2].Body != "third" {
		t.Errorf("last comment = %q, want the second page's entry", comments[2].Body)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !comments[2].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", comments[2].CreatedAt, want)
	}
}

func TestParseCommentPages_Empty(t *testing.T) {
	comments, err := parseCommentPages([]byte("[]"))
	if err != nil {
		t.Fatalf("parseCommentPages: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("got %d comments, want 0", len(comments))
	}
}

func TestParseCommentPages_Malformed(t *testing.T) {
	if _, err := parseCommentPages([]byte(`[{"body": `)); err == nil {
		t.Error("expected error for truncated output")
	}
}
