package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/justapithecus/ndarchive/ledger"
)

// HistorySummary aggregates a run history for the stat boxes.
type HistorySummary struct {
	Runs            int
	Succeeded       int
	Failed          int
	LastRecord      int64
	BytesAppended   int64
	RecordsAppended int64
}

// Summarize aggregates records. LastRecord comes from the newest record.
func Summarize(records []ledger.RunRecord) HistorySummary {
	var s HistorySummary
	for i, rec := range records {
		s.Runs++
		switch {
		case strings.HasPrefix(rec.Status, "failed"), rec.Status == "canceled":
			s.Failed++
		default:
			s.Succeeded++
		}
		if i == 0 {
			s.LastRecord = rec.EndRecord
		}
		s.BytesAppended += rec.BytesAppended
		s.RecordsAppended += rec.RecordsAppended
	}
	return s
}

func renderSummary(s HistorySummary) string {
	boxes := []string{
		renderStatBox("Runs", fmt.Sprintf("%d", s.Runs), highlightColor),
		renderStatBox("Succeeded", fmt.Sprintf("%d", s.Succeeded), successColor),
		renderStatBox("Failed", fmt.Sprintf("%d", s.Failed), errorColor),
		renderStatBox("Last Record", humanize.Comma(s.LastRecord), primaryColor),
		renderStatBox("Appended", humanize.IBytes(uint64(max(s.BytesAppended, 0))), warningColor),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}
