package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/justapithecus/ndarchive/ledger"
)

// HistoryModel is a Bubble Tea model for the run history view: summary
// boxes, a run table, and details of the selected run.
type HistoryModel struct {
	records  []ledger.RunRecord
	summary  HistorySummary
	table    table.Model
	width    int
	height   int
	quitting bool
}

var historyColumns = []table.Column{
	{Title: "Started", Width: 16},
	{Title: "Status", Width: 20},
	{Title: "Records", Width: 24},
	{Title: "Appended", Width: 12},
	{Title: "Duration", Width: 10},
}

// NewHistoryModel creates a history model from newest-first records.
func NewHistoryModel(records []ledger.RunRecord) HistoryModel {
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, table.Row{
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			rec.Status,
			fmt.Sprintf("%d -> %d", rec.StartRecord, rec.EndRecord),
			humanize.IBytes(uint64(max(rec.BytesAppended, 0))),
			fmt.Sprintf("%.1fs", float64(rec.DurationMS)/1000),
		})
	}

	t := table.New(
		table.WithColumns(historyColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(max(len(rows), 1), 12)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#FFFFFF")).Background(primaryColor)
	t.SetStyles(styles)

	return HistoryModel{
		records: records,
		summary: Summarize(records),
		table:   t,
	}
}

// Init implements tea.Model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run History"))
	b.WriteString("\n")
	if len(m.records) == 0 {
		b.WriteString(ValueStyle.Render("No runs recorded."))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
		return b.String()
	}

	b.WriteString(renderSummary(m.summary))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if i := m.table.Cursor(); i >= 0 && i < len(m.records) {
		b.WriteString(renderRunDetail(m.records[i]))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ select run • q quit"))
	return b.String()
}

func renderRunDetail(rec ledger.RunRecord) string {
	rows := [][2]string{
		{"Run ID", rec.RunID},
		{"Archive", rec.Archive},
		{"Status", rec.Status},
		{"Latest", humanize.Comma(rec.LatestAvailable)},
		{"Chunks", fmt.Sprintf("%d planned, %d trimmed", rec.ChunksPlanned, rec.ChunksTrimmed)},
		{"Downloaded", humanize.IBytes(uint64(max(rec.BytesDownloaded, 0)))},
	}
	if rec.Repo != "" {
		rows = append(rows, [2]string{"Repo", rec.Repo})
	}
	if rec.BytesRepaired > 0 {
		rows = append(rows, [2]string{"Repaired", humanize.IBytes(uint64(rec.BytesRepaired))})
	}
	if rec.Message != "" {
		rows = append(rows, [2]string{"Message", rec.Message})
	}
	if rec.Remediation != "" {
		rows = append(rows, [2]string{"Remediation", rec.Remediation})
	}

	var b strings.Builder
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Status" {
			value = StatusStyle(row[1]).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), value))
	}
	return BoxStyle.Render(strings.TrimSuffix(b.String(), "\n"))
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunHistoryTUI runs the history TUI. data must be []ledger.RunRecord.
func RunHistoryTUI(data any) error {
	records, ok := data.([]ledger.RunRecord)
	if !ok {
		return fmt.Errorf("invalid data type for history: %T", data)
	}
	p := tea.NewProgram(NewHistoryModel(records), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderHistoryStatic renders the history view without a full TUI.
func RenderHistoryStatic(records []ledger.RunRecord) string {
	model := NewHistoryModel(records)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
