package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flowsmith/flowsmith/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// timeline is the display order of pipeline states
var timeline = []domain.State{
	domain.StateAcquiring,
	domain.StatePlanning,
	domain.StateCoding,
	domain.StateGating,
	domain.StateReviewing,
	domain.StateDone,
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" FlowSmith │ Issue #%d: %s │ Attempt %d/%d │ %s ",
		m.issue.Number, truncate(m.issue.Title, 50), m.attempt, m.maxAttempts,
		formatElapsed(time.Since(m.startedAt)))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderTimeline()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderGates()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLog()))
	b.WriteString("\n")

	statusBar := " [j/k]scroll [g]top [G]bottom [q]uit "
	if m.done && m.summary != "" {
		statusBar = fmt.Sprintf(" %s │ [q]uit ", m.summary)
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderTimeline() string {
	var parts []string
	reached := stateIndex(m.state)

	for i, st := range timeline {
		label := string(st)
		switch {
		case m.done && st == domain.StateDone:
			label = doneStyle.Render("● " + label)
		case i == reached:
			label = activeStyle.Render("▶ " + label)
		case i < reached:
			label = doneStyle.Render("✓ " + label)
		default:
			label = pendingStyle.Render("○ " + label)
		}
		parts = append(parts, label)
	}

	return strings.Join(parts, dimmedStyle.Render(" ─ "))
}

func (m Model) renderGates() string {
	var b strings.Builder
	b.WriteString("Quality Gates\n")

	if len(m.gates) == 0 {
		b.WriteString(dimmedStyle.Render("  (not yet run)"))
		return b.String()
	}

	for _, g := range m.gates {
		symbol := doneStyle.Render("✓")
		if !g.Passed {
			symbol = failStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %-20s %s\n", symbol, g.Name,
			dimmedStyle.Render(g.Duration.Round(time.Millisecond).String())))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderLog() string {
	var b strings.Builder
	b.WriteString("Events\n")

	if len(m.log) == 0 {
		b.WriteString(dimmedStyle.Render("  (waiting)"))
		return b.String()
	}

	visible := visibleLogLines(m.height)
	start := m.logScroll
	if start > len(m.log)-1 {
		start = len(m.log) - 1
	}
	end := start + visible
	if end > len(m.log) {
		end = len(m.log)
	}

	for _, ev := range m.log[start:end] {
		line := fmt.Sprintf("  %s  %-10s %s",
			ev.Timestamp.Format("15:04:05"), ev.State, truncate(ev.Message, m.width-28))
		if ev.State == domain.StateDone {
			line = doneStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if end < len(m.log) {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  … %d more", len(m.log)-end)))
	}

	return strings.TrimRight(b.String(), "\n")
}

func stateIndex(s domain.State) int {
	for i, st := range timeline {
		if st == s {
			return i
		}
	}
	return -1
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Hour {
		return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func truncate(s string, max int) string {
	if max < 1 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
