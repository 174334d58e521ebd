package live

import (
	"fmt"
	"time"

	"runwatch/internal/event"
	"runwatch/internal/phase"
	"runwatch/internal/runstate"
)

// Reduce folds a published snapshot into the view state. A snapshot from a
// newer epoch resets the timers.
func Reduce(state State, snapshot runstate.Snapshot, now time.Time) State {
	if snapshot.Epoch != state.Snapshot.Epoch {
		state.StartedAt = time.Time{}
		state.FinishedAt = time.Time{}
		state.LastEvent = ""
	}
	if state.StartedAt.IsZero() {
		state.StartedAt = now
	}
	if changes := Transitions(state.Snapshot, snapshot); len(changes) > 0 {
		state.LastEvent = changes[len(changes)-1]
	}
	state.Snapshot = snapshot
	state.Updates++
	if state.Done() && state.FinishedAt.IsZero() {
		state.FinishedAt = now
	}
	return state
}

// Transitions describes what changed between two snapshots, one line per
// visible change, in the order a reader would want them.
func Transitions(prev, next runstate.Snapshot) []string {
	var lines []string
	if prev.Epoch != next.Epoch {
		prev = runstate.Snapshot{Status: runstate.StatusConnecting}
		lines = append(lines, fmt.Sprintf("stream %d connecting", next.Epoch))
	}
	previous := map[string]phase.Entry{}
	for _, entry := range prev.Phases {
		previous[entry.ID] = entry
	}
	for _, entry := range next.Phases {
		before, ok := previous[entry.ID]
		if ok && before.State == entry.State {
			continue
		}
		if !ok && entry.State == phase.StatePending {
			continue
		}
		lines = append(lines, formatPhaseChange(entry))
	}
	for _, name := range next.TableNames() {
		after, _ := next.Table(name)
		before, ok := prev.Table(name)
		if ok && before.State == after.State {
			continue
		}
		lines = append(lines, formatTableChange(after))
	}
	if next.ParseErrors > prev.ParseErrors {
		lines = append(lines, fmt.Sprintf("skipped %d malformed frame(s)", next.ParseErrors-prev.ParseErrors))
	}
	if len(next.Clarification) > 0 && len(prev.Clarification) == 0 {
		lines = append(lines, fmt.Sprintf("clarification requested (%d question(s))", len(next.Clarification)))
	}
	added := next.Preferences.Suggested.Len() - prev.Preferences.Suggested.Len() +
		next.Preferences.AutoSaved.Len() - prev.Preferences.AutoSaved.Len()
	if added > 0 {
		lines = append(lines, fmt.Sprintf("%d preference update(s)", added))
	}
	if next.Status != prev.Status {
		lines = append(lines, formatStatusChange(next))
	}
	if next.Stopped() && !prev.Stopped() {
		lines = append(lines, "stopped by user")
	}
	return lines
}

func formatPhaseChange(entry phase.Entry) string {
	line := "phase " + entry.ID + " " + string(entry.State)
	if entry.State == phase.StateError && entry.Error != "" {
		line += ": " + entry.Error
	}
	return line
}

func formatTableChange(entry runstate.TableEntry) string {
	line := "table " + entry.Name + " " + string(entry.State)
	switch {
	case entry.State == runstate.TableFailed && entry.Error != "":
		line += ": " + entry.Error
	case entry.State == runstate.TableCompleted && entry.RowCount != nil:
		line += fmt.Sprintf(" (%d rows)", *entry.RowCount)
	}
	return line
}

func formatStatusChange(s runstate.Snapshot) string {
	switch s.Status {
	case runstate.StatusFailed:
		return "run failed: " + s.TerminalError
	case runstate.StatusCompleted:
		if s.Completion != nil && len(s.Completion.FailedItems) > 0 {
			return fmt.Sprintf("run completed with %d failed item(s)", len(s.Completion.FailedItems))
		}
		return "run completed"
	default:
		return "run " + string(s.Status)
	}
}

// describeEvent renders one raw event for the debug log line.
func describeEvent(evt event.Event) string {
	switch evt.Type {
	case event.TypePhaseStart, event.TypePhaseComplete:
		return string(evt.Type) + " " + evt.Phase
	case event.TypeTableStart, event.TypeTableComplete, event.TypeTableError:
		return string(evt.Type) + " " + evt.Table
	case event.TypeProgress:
		if evt.Percent != nil {
			return fmt.Sprintf("progress %s", formatPercent(*evt.Percent))
		}
	case event.TypeUnknown:
		return "unknown event"
	}
	return string(evt.Type)
}

// formatDuration renders a rounded duration for display.
func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	return duration.Round(100 * time.Millisecond).String()
}
