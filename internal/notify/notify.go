// Package notify fans pipeline outcomes out to the configured channels
// (Slack webhook, desktop notifications).
package notify

import (
	"fmt"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Issue   int    // Optional issue reference
	PRURL   string // Optional PR URL
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// FromResult builds the outcome notification for a finished run
func FromResult(res *domain.RunResult) Notification {
	n := Notification{
		Issue:   res.Issue.Number,
		Message: res.Summary(),
		PRURL:   res.PRURL,
	}
	switch res.Outcome {
	case domain.OutcomeSucceeded:
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Issue #%d: pull request ready", res.Issue.Number)
	case domain.OutcomeLockTimeout:
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Issue #%d: run slot not granted", res.Issue.Number)
	default:
		n.Type = NotifyError
		n.Title = fmt.Sprintf("Issue #%d: pipeline failed (%s)", res.Issue.Number, res.Outcome)
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
