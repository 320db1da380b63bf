package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlshift/sqlshift/internal/store"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// FormatText renders a terminal-friendly report. Failures are red,
// parked assets yellow, done assets green.
func FormatText(r *ProjectReport) string {
	var b strings.Builder

	b.WriteString(bold + "sqlshift - Migration Report" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("Project: %s\n", r.Project))
	b.WriteString(fmt.Sprintf("Assets:  %d\n\n", r.TotalAssets))

	b.WriteString(bold + "Status Summary" + reset + "\n")
	b.WriteString(strings.Repeat("-", 35) + "\n")
	statusOrder := []string{
		store.StatusFailed, store.StatusVerifyFail, store.StatusNeedPermission,
		store.StatusTranslating, store.StatusReviewing, store.StatusVerifying,
		store.StatusPending, store.StatusDone,
	}
	for _, status := range statusOrder {
		count, ok := r.ByStatus[status]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("%s%-18s%s %5d\n", colorForStatus(status), status, reset, count))
	}
	b.WriteString("\n")

	if len(r.Assets) > 0 {
		b.WriteString(bold + "Assets" + reset + "\n")
		b.WriteString(strings.Repeat("-", 80) + "\n")
		b.WriteString(fmt.Sprintf("%-35s %-16s %6s %9s\n", "File", "Status", "Retry", "Executed"))
		b.WriteString(strings.Repeat("-", 80) + "\n")
		for _, a := range r.Assets {
			name := a.FilePath
			if len(name) > 34 {
				name = "..." + name[len(name)-31:]
			}
			b.WriteString(fmt.Sprintf("%-35s %s%-16s%s %6d %9d\n",
				name, colorForStatus(a.Status), a.Status, reset,
				a.RetryCount, a.ExecutedStatements))
			if a.LastError != "" {
				b.WriteString(fmt.Sprintf("    %serror:%s %s\n", red, reset, firstLine(a.LastError)))
			}
			for _, stmt := range a.SkippedStatements {
				b.WriteString(fmt.Sprintf("    %sskipped:%s %s\n", yellow, reset, firstLine(stmt)))
			}
		}
		b.WriteString("\n")
	}

	if len(r.RecentLogs) > 0 {
		b.WriteString(bold + "Recent Events" + reset + "\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		for _, l := range r.RecentLogs {
			b.WriteString(fmt.Sprintf("[%s] %s", l.Level, l.Event))
			if l.Detail != "" {
				b.WriteString(": " + firstLine(l.Detail))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// FormatJSON renders the report as indented JSON for scripting.
func FormatJSON(r *ProjectReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

func colorForStatus(status string) string {
	switch status {
	case store.StatusDone:
		return green
	case store.StatusFailed, store.StatusVerifyFail:
		return red
	case store.StatusNeedPermission:
		return yellow
	default:
		return ""
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
