package live

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// liveTextLines bounds how much streamed text the view shows.
const liveTextLines = 6

// renderHeader renders the run identity, status and elapsed time.
func renderHeader(state State, now time.Time, noColor bool) string {
	s := state.Snapshot
	line := "Run " + s.RunID
	if state.Profile != "" {
		line += " | " + state.Profile
	}
	status := stylize(formatRunStatus(s), noColor, statusColor(s))
	line = stylize(line, noColor, lipgloss.Color("33")) + " | " + status
	if !state.StartedAt.IsZero() {
		end := now
		if !state.FinishedAt.IsZero() {
			end = state.FinishedAt
		}
		line += " | Elapsed: " + formatDuration(end.Sub(state.StartedAt))
	}
	return line
}

// renderSummary renders progress and token accounting.
func renderSummary(state State, noColor bool) string {
	s := state.Snapshot
	parts := []string{"Tokens: " + formatTokens(s.Tokens)}
	if s.PercentComplete > 0 || len(s.Tables) > 0 {
		parts = append([]string{"Progress: " + formatPercent(s.PercentComplete)}, parts...)
	}
	if entry, ok := s.CurrentPhase(); ok {
		parts = append(parts, "Now: "+phaseLabel(entry))
	}
	if s.ParseErrors > 0 {
		parts = append(parts, "Skipped frames: "+fmtInt(s.ParseErrors))
	}
	return stylize(strings.Join(parts, " | "), noColor, lipgloss.Color("242"))
}

// renderLiveText renders the tail of the streamed text.
func renderLiveText(state State, width int, noColor bool) string {
	text := strings.TrimSpace(state.Snapshot.LiveText)
	if text == "" {
		return ""
	}
	style := lipgloss.NewStyle()
	if width > 4 {
		style = style.Width(width - 2)
	}
	if !noColor {
		style = style.Foreground(lipgloss.Color("252"))
	}
	return style.Render(tail(text, liveTextLines))
}

// renderClarification lists the questions the run is waiting on.
func renderClarification(state State, noColor bool) string {
	questions := state.Snapshot.Clarification
	if len(questions) == 0 {
		return ""
	}
	lines := []string{stylize("Clarification needed:", noColor, lipgloss.Color("220"))}
	for _, question := range questions {
		line := "  - " + question.Text
		if len(question.Options) > 0 {
			line += " [" + strings.Join(question.Options, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderFooter renders the outcome once known, otherwise the last change.
func renderFooter(state State, noColor bool) string {
	s := state.Snapshot
	switch {
	case s.Stopped():
		return stylize("Stopped. Press q to exit.", noColor, lipgloss.Color("220"))
	case s.Terminal() && s.TerminalError != "":
		return stylize("Failed: "+s.TerminalError, noColor, lipgloss.Color("196"))
	case s.Terminal():
		return stylize("Completed. Press q to exit.", noColor, lipgloss.Color("42"))
	case state.LastEvent != "":
		return stylize("Last event: "+state.LastEvent, noColor, lipgloss.Color("244"))
	}
	if evt, ok := s.RawLog.Last(); ok {
		return stylize("Last event: "+describeEvent(evt), noColor, lipgloss.Color("244"))
	}
	return ""
}
