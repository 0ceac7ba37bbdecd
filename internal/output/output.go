// Package output renders durations and usage tables for the CLI.
package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/goodtune/screentime/internal/apps"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	excludedStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#888888"))
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))
)

// FormatMillis renders a duration as "1h 5m" or "12m". Seconds are
// truncated.
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60_000
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Today writes the headline total for result followed by its breakdown.
func Today(w io.Writer, result *usage.DailyResult, rows []apps.Row) error {
	title := titleStyle.Render(fmt.Sprintf("Screen time %s: %s", result.Date, FormatMillis(result.TotalMillis)))
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No foreground usage recorded.")
		return err
	}
	return AppTable(w, rows)
}

// AppTable writes the app listing as a bordered table.
func AppTable(w io.Writer, rows []apps.Row) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("APP", "PACKAGE", "USAGE", "EXCLUDED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && rows[row].Excluded {
				return excludedStyle
			}
			return cellStyle
		})

	for _, row := range rows {
		excluded := ""
		if row.Excluded {
			excluded = "yes"
		}
		t.Row(row.Label, row.Key, FormatMillis(row.UsageMillis), excluded)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// History writes persisted daily totals, newest first.
func History(w io.Writer, records []storage.DailyUsage) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No daily usage recorded.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("DATE", "USAGE", "MS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, record := range records {
		t.Row(record.Date, FormatMillis(record.DurationMillis), strconv.FormatInt(record.DurationMillis, 10))
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// Status renders a snapshot status with a color hinting at its health.
func Status(status usage.Status) string {
	switch status {
	case usage.StatusLive:
		return liveStyle.Render(string(status))
	case usage.StatusSourceUnavailable, usage.StatusDisabled:
		return warnStyle.Render(string(status))
	default:
		return string(status)
	}
}
