// Package display renders result tables for stdout.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// MessageRow is one line of search output.
type MessageRow struct {
	UID     uint32
	Folder  string // empty outside all-folders scope
	From    string
	Subject string
	Date    string
	Time    time.Time
	Size    int64
}

// StatusRow is one folder's STATUS result. OK is false when the server
// refused the query for that folder.
type StatusRow struct {
	Folder   string
	Messages uint32
	Unseen   uint32
	Recent   uint32
	OK       bool
}

// QuotaRow is one quota resource. STORAGE values arrive in kilobytes and
// are converted to bytes before they get here.
type QuotaRow struct {
	Resource string
	Used     uint64
	Limit    uint64
}

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	totalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	critStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// FormatSize renders a byte count the way mail clients do: raw bytes,
// whole kilobytes, or megabytes with one decimal.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1fM", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.0fK", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// Truncate limits s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// Messages renders the search result table plus a count line. The Folder
// column appears only when at least one row carries a folder.
func Messages(rows []MessageRow) string {
	if len(rows) == 0 {
		return "No messages found.\n"
	}
	hasFolder := false
	for _, r := range rows {
		if r.Folder != "" {
			hasFolder = true
			break
		}
	}
	headers := []string{"UID", "From", "Subject", "Date", "Size"}
	if hasFolder {
		headers = append([]string{headers[0], "Folder"}, headers[1:]...)
	}
	t := newTable(headers...)
	for _, r := range rows {
		cells := []string{
			fmt.Sprintf("%d", r.UID),
			Truncate(r.From, 40),
			Truncate(r.Subject, 60),
			r.Date,
			FormatSize(r.Size),
		}
		if hasFolder {
			cells = append([]string{cells[0], r.Folder}, cells[1:]...)
		}
		t.Row(cells...)
	}
	return fmt.Sprintf("%s\n%d message(s)\n", t.Render(), len(rows))
}

// Status renders per-folder statistics with a totals row.
func Status(rows []StatusRow) string {
	t := newTable("Folder", "Messages", "Unseen", "Recent")
	var msgs, unseen, recent uint32
	for _, r := range rows {
		if !r.OK {
			t.Row(r.Folder, "?", "?", "?")
			continue
		}
		msgs += r.Messages
		unseen += r.Unseen
		recent += r.Recent
		t.Row(r.Folder,
			fmt.Sprintf("%d", r.Messages),
			fmt.Sprintf("%d", r.Unseen),
			fmt.Sprintf("%d", r.Recent))
	}
	t.Row(totalStyle.Render("Total"),
		totalStyle.Render(fmt.Sprintf("%d", msgs)),
		totalStyle.Render(fmt.Sprintf("%d", unseen)),
		totalStyle.Render(fmt.Sprintf("%d", recent)))
	return t.Render() + "\n"
}

// Quota renders quota resources with usage coloured at 75% and 90%.
func Quota(rows []QuotaRow) string {
	if len(rows) == 0 {
		return "No quota information available.\n"
	}
	t := newTable("Resource", "Used", "Limit", "Usage")
	for _, r := range rows {
		used, limit := fmt.Sprintf("%d", r.Used), fmt.Sprintf("%d", r.Limit)
		if strings.EqualFold(r.Resource, "STORAGE") {
			used = FormatSize(int64(r.Used))
			limit = FormatSize(int64(r.Limit))
		}
		pct := 0.0
		if r.Limit > 0 {
			pct = float64(r.Used) / float64(r.Limit) * 100
		}
		usage := fmt.Sprintf("%.1f%%", pct)
		switch {
		case pct >= 90:
			usage = critStyle.Render(usage)
		case pct >= 75:
			usage = warnStyle.Render(usage)
		}
		t.Row(r.Resource, used, limit, usage)
	}
	return t.Render() + "\n"
}
