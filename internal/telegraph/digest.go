package telegraph

import (
	"fmt"
	"strings"

	"github.com/zulandar/tally/internal/report"
)

// maxDigestSupervisors caps the per-supervisor lines in a digest body.
const maxDigestSupervisors = 10

// StatsProvider supplies today's tally of saved records.
type StatsProvider interface {
	Today() report.Summary
}

// FormatDigest formats a daily summary. It returns false when nothing was
// saved, in which case no digest should be posted.
func FormatDigest(s report.Summary) (FormattedEvent, bool) {
	if s.Total == 0 {
		return FormattedEvent{}, false
	}

	var lines []string
	for i, sc := range s.BySupervisor {
		if i == maxDigestSupervisors {
			lines = append(lines, fmt.Sprintf("…and %d more", len(s.BySupervisor)-i))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %d", sc.Supervisor, sc.Count))
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("Daily tally %s", s.Day),
		Body:     strings.Join(lines, "\n"),
		Severity: "info",
		Color:    SeverityColor("info"),
		Fields: []Field{
			{Name: "Records", Value: fmt.Sprintf("%d", s.Total), Short: true},
			{Name: "Supervisors", Value: fmt.Sprintf("%d", len(s.BySupervisor)), Short: true},
		},
	}, true
}
