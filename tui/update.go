package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.logScroll < len(m.log)-1 {
				m.logScroll++
			}
		case "k", "up":
			if m.logScroll > 0 {
				m.logScroll--
			}
		case "g":
			m.logScroll = 0
		case "G":
			m.logScroll = maxInt(0, len(m.log)-visibleLogLines(m.height))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case EventMsg:
		m = m.applyEvent(domain.Event(msg))
		return m, waitForEvent(m.feed)

	case FeedClosedMsg:
		m.done = true
		return m, nil
	}

	return m, nil
}

func (m Model) applyEvent(ev domain.Event) Model {
	m.state = ev.State
	if ev.Attempt > 0 {
		m.attempt = ev.Attempt
	}
	if len(ev.Gates) > 0 {
		m.gates = ev.Gates
	}

	atBottom := m.logScroll >= maxInt(0, len(m.log)-visibleLogLines(m.height))
	m.log = append(m.log, ev)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	// Follow the tail unless the user scrolled up.
	if atBottom {
		m.logScroll = maxInt(0, len(m.log)-visibleLogLines(m.height))
	}

	if ev.State == domain.StateDone {
		m.done = true
		m.summary = ev.Message
	}
	return m
}

func visibleLogLines(height int) int {
	// Header, timeline, gates section and status bar take the rest.
	n := height - 14
	if n < 3 {
		n = 3
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
