package telegraph

import (
	"fmt"
	"strings"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// SeverityColor maps a severity string to a sidebar color.
func SeverityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// RenderPlain flattens a message and its events into plain text, for
// platforms without rich attachments.
func RenderPlain(msg OutboundMessage) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, ev := range msg.Events {
		var lines []string
		if ev.Title != "" {
			lines = append(lines, ev.Title)
		}
		if ev.Body != "" {
			lines = append(lines, ev.Body)
		}
		for _, f := range ev.Fields {
			lines = append(lines, fmt.Sprintf("%s: %s", f.Name, f.Value))
		}
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}
