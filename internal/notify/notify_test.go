package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowsmith/flowsmith/internal/domain"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Run finished",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "Issue #7",
				Text:  "issue #7 succeeded (attempt 1)",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestFromResult(t *testing.T) {
	tests := []struct {
		outcome  domain.Outcome
		wantType NotificationType
		wantWord string
	}{
		{domain.OutcomeSucceeded, NotifySuccess, "pull request ready"},
		{domain.OutcomeLockTimeout, NotifyWarning, "slot not granted"},
		{domain.OutcomeExhaustedRetries, NotifyError, "pipeline failed"},
		{domain.OutcomeFatalError, NotifyError, "pipeline failed"},
	}
	for _, tt := range tests {
		n := FromResult(&domain.RunResult{
			Issue:   domain.Issue{Number: 7},
			Outcome: tt.outcome,
		})
		if n.Type != tt.wantType {
			t.Errorf("%s: Type = %v, want %v", tt.outcome, n.Type, tt.wantType)
		}
		if !strings.Contains(n.Title, tt.wantWord) {
			t.Errorf("%s: Title = %q, want it to contain %q", tt.outcome, n.Title, tt.wantWord)
		}
	}
}

func TestDesktopBody(t *testing.T) {
	plain := desktopBody(Notification{Message: "issue #7 succeeded (attempt 1)"})
	if plain != "issue #7 succeeded (attempt 1)" {
		t.Errorf("desktopBody without PR = %q", plain)
	}

	withPR := desktopBody(Notification{
		Message: "issue #7 succeeded (attempt 1)",
		PRURL:   "https://github.com/org/repo/pull/9",
	})
	if !strings.HasSuffix(withPR, "\nhttps://github.com/org/repo/pull/9") {
		t.Errorf("desktopBody with PR = %q, want the link on its own line", withPR)
	}
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyError, "critical"},
		{NotifyWarning, "normal"},
		{NotifySuccess, "low"},
		{NotifyInfo, "low"},
	}

	for _, tt := range tests {
		if got := urgency(tt.typ); got != tt.want {
			t.Errorf("urgency(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
