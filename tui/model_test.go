package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowsmith/flowsmith/internal/domain"
)

func testModel() Model {
	m := NewModel(ModelConfig{
		Issue:       domain.Issue{Number: 42, Title: "Make it faster"},
		MaxAttempts: 3,
		Feed:        NewFeed(),
	})
	m.width = 100
	m.height = 30
	return m
}

func applyEvents(m Model, events ...domain.Event) Model {
	for _, ev := range events {
		m = m.applyEvent(ev)
	}
	return m
}

func TestApplyEvent_TracksStateAndAttempt(t *testing.T) {
	m := applyEvents(testModel(),
		domain.Event{State: domain.StatePlanning},
		domain.Event{State: domain.StateCoding, Attempt: 1},
		domain.Event{State: domain.StateGating, Attempt: 1},
	)

	if m.state != domain.StateGating {
		t.Errorf("state = %q, want gating", m.state)
	}
	if m.attempt != 1 {
		t.Errorf("attempt = %d, want 1", m.attempt)
	}
	if len(m.log) != 3 {
		t.Errorf("log length = %d, want 3", len(m.log))
	}
}

func TestApplyEvent_DoneSetsSummary(t *testing.T) {
	m := applyEvents(testModel(),
		domain.Event{State: domain.StateDone, Message: "issue #42 succeeded (attempt 1)"},
	)

	if !m.done {
		t.Error("done = false, want true")
	}
	if m.summary != "issue #42 succeeded (attempt 1)" {
		t.Errorf("summary = %q", m.summary)
	}
}

func TestApplyEvent_BoundsLog(t *testing.T) {
	m := testModel()
	for i := 0; i < maxLogLines+50; i++ {
		m = m.applyEvent(domain.Event{State: domain.StateGating})
	}

	if len(m.log) != maxLogLines {
		t.Errorf("log length = %d, want %d", len(m.log), maxLogLines)
	}
}

func TestView_ShowsGateResults(t *testing.T) {
	m := applyEvents(testModel(),
		domain.Event{
			State:   domain.StateGating,
			Attempt: 1,
			Gates: []domain.GateResult{
				{Name: "test", Passed: true, Duration: 2 * time.Second},
				{Name: "lint", Passed: false, Duration: time.Second},
			},
		},
	)

	out := m.View()
	if !strings.Contains(out, "test") || !strings.Contains(out, "lint") {
		t.Errorf("view missing gate names:\n%s", out)
	}
	if !strings.Contains(out, "Issue #42") {
		t.Errorf("view missing issue header:\n%s", out)
	}
}

func TestView_BeforeWindowSize(t *testing.T) {
	m := NewModel(ModelConfig{Feed: NewFeed()})
	if m.View() != "Loading..." {
		t.Errorf("View() = %q, want Loading...", m.View())
	}
}

func TestUpdate_QuitKeys(t *testing.T) {
	m := testModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestUpdate_FeedDelivery(t *testing.T) {
	feed := NewFeed()
	m := NewModel(ModelConfig{
		Issue: domain.Issue{Number: 7},
		Feed:  feed,
	})
	m.width = 80
	m.height = 24

	feed.Handle(domain.Event{State: domain.StatePlanning, Message: "planning issue"})
	feed.Close()

	msg := waitForEvent(feed)()
	ev, ok := msg.(EventMsg)
	if !ok {
		t.Fatalf("message type = %T, want EventMsg", msg)
	}
	updated, _ := m.Update(ev)
	m = updated.(Model)
	if m.state != domain.StatePlanning {
		t.Errorf("state = %q, want planning", m.state)
	}

	msg = waitForEvent(feed)()
	if _, ok := msg.(FeedClosedMsg); !ok {
		t.Fatalf("message type = %T, want FeedClosedMsg", msg)
	}
	updated, _ = m.Update(msg)
	if !updated.(Model).done {
		t.Error("done = false after feed closed")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "00:45"},
		{5*time.Minute + 3*time.Second, "05:03"},
		{time.Hour + 2*time.Minute, "1:02:00"},
	}

	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("hello world", 8); got != "hello w…" {
		t.Errorf("truncate long = %q", got)
	}
}
