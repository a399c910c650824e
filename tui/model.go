// Package tui renders a live view of a pipeline run: the state timeline,
// per-attempt gate results, and a scrolling event log.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// maxLogLines bounds the in-memory event log
const maxLogLines = 200

// Feed bridges the pipeline's event sink to the TUI event loop. Handle is
// safe to call from the pipeline goroutine; Close signals the viewer that no
// more events will arrive.
type Feed struct {
	ch chan domain.Event
}

// NewFeed creates a feed with a buffered channel
func NewFeed() *Feed {
	return &Feed{ch: make(chan domain.Event, 64)}
}

// Handle enqueues a pipeline event. Drops the event if the viewer has
// fallen too far behind rather than stalling the run.
func (f *Feed) Handle(ev domain.Event) {
	select {
	case f.ch <- ev:
	default:
	}
}

// Close marks the feed finished
func (f *Feed) Close() {
	close(f.ch)
}

// Model is the TUI application model
type Model struct {
	issue       domain.Issue
	maxAttempts int
	feed        *Feed

	// Run progress
	state     domain.State
	attempt   int
	gates     []domain.GateResult
	log       []domain.Event
	summary   string
	startedAt time.Time
	done      bool

	// UI state
	width     int
	height    int
	logScroll int
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Issue       domain.Issue
	MaxAttempts int
	Feed        *Feed
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	return Model{
		issue:       cfg.Issue,
		maxAttempts: cfg.MaxAttempts,
		feed:        cfg.Feed,
		startedAt:   time.Now(),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForEvent(m.feed),
	)
}

// TickMsg drives the elapsed-time display
type TickMsg time.Time

// EventMsg carries one pipeline event into the update loop
type EventMsg domain.Event

// FeedClosedMsg is sent when the pipeline has emitted its last event
type FeedClosedMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForEvent(f *Feed) tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-f.ch
		if !ok {
			return FeedClosedMsg{}
		}
		return EventMsg(ev)
	}
}
