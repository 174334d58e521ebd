package live

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"runwatch/internal/event"
	"runwatch/internal/phase"
	"runwatch/internal/runstate"
)

// fmtInt converts an int to string.
func fmtInt(value int) string {
	return strconv.Itoa(value)
}

// formatPercent renders a 0-100 percentage without trailing zeros.
func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64) + "%"
}

// formatTokens renders cumulative token totals.
func formatTokens(tokens event.Tokens) string {
	if tokens.Total <= 0 && tokens.Prompt <= 0 && tokens.Completion <= 0 {
		return "n/a"
	}
	return fmtInt(tokens.Total) + " (" + fmtInt(tokens.Prompt) + " in / " + fmtInt(tokens.Completion) + " out)"
}

// formatRunStatus renders the status column of the header.
func formatRunStatus(s runstate.Snapshot) string {
	if s.Stopped() {
		return "stopped"
	}
	return string(s.Status)
}

// formatRowCount renders an optional row count.
func formatRowCount(count *int) string {
	if count == nil {
		return ""
	}
	return fmtInt(*count)
}

// phaseLabel prefers the configured label over the id.
func phaseLabel(entry phase.Entry) string {
	if entry.Label != "" {
		return entry.Label
	}
	return phase.Humanize(entry.ID)
}

// clip collapses whitespace and truncates text for a single table cell.
func clip(text string, limit int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if limit <= 3 || len([]rune(normalized)) <= limit {
		return normalized
	}
	runes := []rune(normalized)
	return string(runes[:limit-3]) + "..."
}

// tail keeps the last n lines of text.
func tail(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor || text == "" {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// statusColor picks the header color for a run status.
func statusColor(s runstate.Snapshot) lipgloss.Color {
	switch {
	case s.Stopped():
		return lipgloss.Color("220")
	case s.Status == runstate.StatusCompleted:
		return lipgloss.Color("42")
	case s.Status == runstate.StatusFailed:
		return lipgloss.Color("196")
	case s.Status == runstate.StatusRunning:
		return lipgloss.Color("33")
	default:
		return lipgloss.Color("246")
	}
}

// phaseColor picks the cell color for a phase state.
func phaseColor(state phase.State) lipgloss.Color {
	switch state {
	case phase.StateComplete:
		return lipgloss.Color("42")
	case phase.StateError:
		return lipgloss.Color("196")
	case phase.StateActive:
		return lipgloss.Color("33")
	default:
		return lipgloss.Color("246")
	}
}

// tableColor picks the cell color for a table state.
func tableColor(state runstate.TableState) lipgloss.Color {
	switch state {
	case runstate.TableCompleted:
		return lipgloss.Color("42")
	case runstate.TableFailed:
		return lipgloss.Color("196")
	case runstate.TableDiscovering:
		return lipgloss.Color("39")
	case runstate.TableGenerating:
		return lipgloss.Color("201")
	default:
		return lipgloss.Color("246")
	}
}
