package live

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"runwatch/internal/runstate"
)

// tableStyles returns table styles for the UI.
func tableStyles(noColor bool) table.Styles {
	styles := table.DefaultStyles()
	if noColor {
		styles.Selected = lipgloss.NewStyle()
		return styles
	}
	styles.Header = styles.Header.Foreground(lipgloss.Color("252"))
	styles.Selected = lipgloss.NewStyle()
	return styles
}

// phaseColumns sizes the phase grid for the terminal width.
func phaseColumns(width int) []table.Column {
	detail := max(width-20-10-6, 20)
	return []table.Column{
		{Title: "Phase", Width: 20},
		{Title: "State", Width: 10},
		{Title: "Detail", Width: detail},
	}
}

// itemColumns sizes the table-progress grid for the terminal width.
func itemColumns(width int) []table.Column {
	detail := max(width-24-12-8-8, 16)
	return []table.Column{
		{Title: "Table", Width: 24},
		{Title: "State", Width: 12},
		{Title: "Rows", Width: 8},
		{Title: "Error", Width: detail},
	}
}

// phaseRows converts phase entries into grid rows.
func phaseRows(s runstate.Snapshot, width int, noColor bool) []table.Row {
	limit := phaseColumns(width)[2].Width
	rows := make([]table.Row, 0, len(s.Phases))
	for _, entry := range s.Phases {
		detail := entry.Description
		if entry.Error != "" {
			detail = entry.Error
		}
		rows = append(rows, table.Row{
			clip(phaseLabel(entry), 20),
			stylize(string(entry.State), noColor, phaseColor(entry.State)),
			clip(detail, limit),
		})
	}
	return rows
}

// itemRows converts table entries into grid rows in arrival order.
func itemRows(s runstate.Snapshot, width int, noColor bool) []table.Row {
	limit := itemColumns(width)[3].Width
	names := s.TableNames()
	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		entry, _ := s.Table(name)
		rows = append(rows, table.Row{
			clip(entry.Name, 24),
			stylize(string(entry.State), noColor, tableColor(entry.State)),
			formatRowCount(entry.RowCount),
			clip(entry.Error, limit),
		})
	}
	return rows
}
