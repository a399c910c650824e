package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier surfaces run outcomes as desktop notifications
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + escapeQuotes(desktopBody(n)) +
		`" with title "` + escapeQuotes(n.Title) + `" subtitle "FlowSmith"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", "-a", "FlowSmith", "-u", urgency(n.Type),
		n.Title, desktopBody(n))
	return cmd.Run()
}

// desktopBody renders the notification text, with the PR link on its own
// line when the run produced one.
func desktopBody(n Notification) string {
	if n.PRURL == "" {
		return n.Message
	}
	return n.Message + "\n" + n.PRURL
}

// urgency maps the notification type to a notify-send urgency level
func urgency(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifyWarning:
		return "normal"
	default:
		return "low"
	}
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
