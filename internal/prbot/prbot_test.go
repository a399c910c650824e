package prbot

import (
	"testing"
)

func TestExtractPRNumber(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://github.com/owner/repo/pull/123", 123},
		{"https://github.com/owner/repo/pull/1", 1},
		{"not-a-url", 0},
	}
	for _, tt := range tests {
		if got := extractPRNumber(tt.url); got != tt.want {
			t.Errorf("extractPRNumber(%q) = %d, want %d", tt.url, got, tt.want)
		}
	}
}

func TestAnalyzeDiff_Security(t *testing.T) {
	diff := `
diff --git a/auth/login.go b/auth/login.go
+func validatePassword(password string) bool {
+    return bcrypt.CompareHashAndPassword(hash, []byte(password))
+}
`
	if category := AnalyzeDiff(diff); category != CategorySecurity {
		t.Errorf("Category = %s, want security", category)
	}
}

func TestAnalyzeDiff_Architecture(t *testing.T) {
	diff := `
diff --git a/go.mod b/go.mod
+require github.com/newdep/pkg v1.0.0
`
	if category := AnalyzeDiff(diff); category != CategoryArchitecture {
		t.Errorf("Category = %s, want architecture", category)
	}
}

func TestAnalyzeDiff_Migrations(t *testing.T) {
	diff := `
diff --git a/migrations/001_create_users.sql b/migrations/001_create_users.sql
+CREATE TABLE users (
+    id SERIAL PRIMARY KEY
+);
`
	if category := AnalyzeDiff(diff); category != CategoryMigrations {
		t.Errorf("Category = %s, want migrations", category)
	}
}

func TestAnalyzeDiff_Routine(t *testing.T) {
	diff := `
diff --git a/utils/format.go b/utils/format.go
+func FormatDate(t time.Time) string {
+    return t.Format("2006-01-02")
+}
`
	if category := AnalyzeDiff(diff); category != CategoryRoutine {
		t.Errorf("Category = %s, want routine", category)
	}
}

func TestGetLabels(t *testing.T) {
	if labels := GetLabels(CategorySecurity); len(labels) != 2 || labels[0] != "needs-human-review" {
		t.Errorf("GetLabels(security) = %v", labels)
	}
	if labels := GetLabels(CategoryRoutine); len(labels) != 1 || labels[0] != "auto-merge" {
		t.Errorf("GetLabels(routine) = %v", labels)
	}
}

func TestExtractChangeSummary(t *testing.T) {
	diff := `diff --git a/a.go b/a.go
+x
diff --git a/b.go b/b.go
+y
`
	got := ExtractChangeSummary(diff)
	if got != "Modified a.go, b.go" {
		t.Errorf("ExtractChangeSummary = %q", got)
	}
}
