package labels

import (
	"fmt"
	"regexp"
	"time"
)

// Comment markers are HTML comments embedded in issue comments. They carry
// the coordinator's durable records: when an operation last completed (the
// cooldown record) and when the current lock was acquired (the staleness
// record). A new marker supersedes the previous one; old markers are never
// deleted.

const (
	operationMarkerName = "flowsmith-operation-log"
	acquiredMarkerName  = "flowsmith-lock-acquired"
)

var (
	operationMarkerRe = regexp.MustCompile(
		`<!--\s*` + operationMarkerName +
			`\s+service=(\S+)\s+operation=(\S+)\s+executed_at=(\S+)\s*-->`)
	acquiredMarkerRe = regexp.MustCompile(
		`<!--\s*` + acquiredMarkerName +
			`\s+acquirer=(\S+)\s+acquired_at=(\S+)\s*-->`)
)

// FormatOperationMarker renders the cooldown record comment body for a
// completed (service, operation) run.
func FormatOperationMarker(service, operation string, executedAt time.Time) string {
	marker := fmt.Sprintf("<!-- %s service=%s operation=%s executed_at=%s -->",
		operationMarkerName, service, operation, executedAt.UTC().Format(time.RFC3339))
	return marker + "\n\n_FlowSmith operation cooldown record._"
}

// FormatAcquiredMarker renders the acquire record comment body for a newly
// granted slot.
func FormatAcquiredMarker(acquirer string, acquiredAt time.Time) string {
	marker := fmt.Sprintf("<!-- %s acquirer=%s acquired_at=%s -->",
		acquiredMarkerName, acquirer, acquiredAt.UTC().Format(time.RFC3339))
	return marker + "\n\n_FlowSmith lock record._"
}

// LatestOperationTime scans comments for cooldown records matching the given
// service and operation labels and returns the most recent executed_at.
// The zero time means no record exists.
func LatestOperationTime(comments []Comment, service, operation string) time.Time {
	var latest time.Time
	for _, c := range comments {
		m := operationMarkerRe.FindStringSubmatch(c.Body)
		if m == nil || m[1] != service || m[2] != operation {
			continue
		}
		ts, err := time.Parse(time.RFC3339, m[3])
		if err != nil {
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// LatestAcquiredTime scans comments for acquire records and returns the most
// recent acquired_at. The zero time means no record exists.
func LatestAcquiredTime(comments []Comment) time.Time {
	var latest time.Time
	for _, c := range comments {
		m := acquiredMarkerRe.FindStringSubmatch(c.Body)
		if m == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, m[2])
		if err != nil {
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}
