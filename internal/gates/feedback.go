package gates

import (
	"fmt"
	"strings"

	"github.com/flowsmith/flowsmith/internal/domain"
)

const truncationSuffix = "\n...[truncated]"

// BuildFeedback renders the failed gates of an attempt into the feedback
// block handed to the next coding step. Each gate's output is clipped
// independently so one noisy gate cannot crowd out the others. Returns ""
// when every gate passed.
func BuildFeedback(results []domain.GateResult, maxCharsPerItem int) string {
	var b strings.Builder
	for _, r := range results {
		if r.Passed {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### Gate `%s` failed\n", r.Name)
		fmt.Fprintf(&b, "Command: `%s`\n\n", r.Command)
		b.WriteString("```\n")
		b.WriteString(ClipText(r.Output, maxCharsPerItem))
		b.WriteString("\n```\n")
	}
	return b.String()
}

// ClipText truncates s to at most max characters, appending a marker when
// anything was cut. Non-positive max disables clipping.
func ClipText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + truncationSuffix
}
