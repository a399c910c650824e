package prbot

import (
	"regexp"
	"strings"
)

// Category classifies a PR's diff by how much human review it warrants.
// Runs whose diffs touch sensitive areas get review labels instead of the
// auto-merge label.
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryArchitecture Category = "architecture"
	CategoryMigrations   Category = "migrations"
	CategoryRoutine      Category = "routine"
)

var (
	securityPatterns = compileAll(
		`(?i)auth`,
		`(?i)password`,
		`(?i)credential`,
		`(?i)secret`,
		`(?i)token`,
		`(?i)encrypt`,
		`(?i)decrypt`,
		`(?i)permission`,
		`(?i)bcrypt`,
		`(?i)jwt`,
		`(?i)oauth`,
		`(?i)session`,
	)

	architecturePatterns = compileAll(
		`go\.mod`,
		`go\.sum`,
		`package\.json`,
		`(?i)api/`,
		`(?i)interface\s+\w+`,
	)

	migrationPatterns = compileAll(
		`migrations/`,
		`(?i)CREATE\s+TABLE`,
		`(?i)ALTER\s+TABLE`,
		`(?i)DROP\s+TABLE`,
		`(?i)\.sql$`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// AnalyzeDiff categorizes a diff by its content. Checks run in order of
// severity: security beats migrations beats architecture.
func AnalyzeDiff(diff string) Category {
	if matchesAny(diff, securityPatterns) {
		return CategorySecurity
	}
	if matchesAny(diff, migrationPatterns) {
		return CategoryMigrations
	}
	if matchesAny(diff, architecturePatterns) {
		return CategoryArchitecture
	}
	return CategoryRoutine
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// GetLabels returns the labels to apply to a PR of the given category
func GetLabels(category Category) []string {
	switch category {
	case CategorySecurity:
		return []string{"needs-human-review", "security"}
	case CategoryArchitecture:
		return []string{"needs-human-review", "architecture"}
	case CategoryMigrations:
		return []string{"needs-human-review", "database"}
	default:
		return []string{"auto-merge"}
	}
}

// ExtractChangeSummary summarizes a diff by the files it touches
func ExtractChangeSummary(diff string) string {
	var files []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") {
			parts := strings.Split(line, " ")
			if len(parts) >= 4 {
				files = append(files, strings.TrimPrefix(parts[3], "b/"))
			}
		}
	}

	if len(files) == 0 {
		return "Changes made"
	}
	if len(files) > 3 {
		files = files[:3]
	}
	return "Modified " + strings.Join(files, ", ")
}
