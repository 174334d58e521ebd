package runstate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"runwatch/internal/event"
	"runwatch/internal/phase"
)

// TerminalPolicy decides whether a terminal outcome can be replaced.
type TerminalPolicy string

const (
	// TerminalStrict keeps the first terminal outcome.
	TerminalStrict TerminalPolicy = "strict"
	// TerminalLastWins lets a later terminal event overwrite the outcome.
	TerminalLastWins TerminalPolicy = "last_wins"
)

// ParseTerminalPolicy resolves a configured policy name.
func ParseTerminalPolicy(value string) (TerminalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(TerminalStrict):
		return TerminalStrict, nil
	case string(TerminalLastWins):
		return TerminalLastWins, nil
	default:
		return "", fmt.Errorf("unknown terminal policy %q (expected strict|last_wins)", value)
	}
}

// Machine folds events into snapshots for one stream producer.
type Machine struct {
	Vocabulary phase.Vocabulary
	Visibility phase.Visibility
	Terminal   TerminalPolicy
}

// Initial returns the connecting snapshot for a new stream epoch.
func (m Machine) Initial(epoch uint64, runID string) Snapshot {
	return Snapshot{
		Epoch:  epoch,
		RunID:  runID,
		Status: StatusConnecting,
		Phases: phase.New(m.Vocabulary, m.Visibility).Entries(),
		Tables: map[string]TableEntry{},
	}
}

// Apply returns the snapshot that results from applying evt to s.
func (m Machine) Apply(s Snapshot, evt event.Event) Snapshot {
	s.RawLog = s.RawLog.Append(evt)
	if evt.Type == event.TypeUnknown {
		return s
	}
	if s.Terminal() {
		if evt.Type.Terminal() && m.Terminal == TerminalLastWins {
			return m.applyTerminal(s, evt)
		}
		return s
	}
	if evt.Type.Terminal() {
		return m.applyTerminal(s, evt)
	}

	switch evt.Type {
	case event.TypeRunStart:
		if s.Status == StatusConnecting {
			s.Status = StatusRunning
		}
		return s
	case event.TypePhaseStart:
		s.Phases = m.tracker(s).RecordStart(evt.Phase, evt.Description).Entries()
	case event.TypePhaseComplete:
		s.Phases = m.tracker(s).RecordComplete(evt.Phase).Entries()
	case event.TypeProgress:
		if evt.Percent != nil {
			s.PercentComplete = clampPercent(*evt.Percent)
		}
		if evt.Table != "" {
			s = upsertTable(s, evt.Table, func(entry *TableEntry) {
				if !entry.State.settled() {
					entry.State = tableStateForPhase(evt.Phase)
				}
			})
		}
	case event.TypeTableStart:
		s = upsertTable(s, evt.Table, func(entry *TableEntry) {
			entry.State = TableDiscovering
			entry.Error = ""
		})
	case event.TypeTableComplete:
		s = upsertTable(s, evt.Table, func(entry *TableEntry) {
			entry.State = TableCompleted
			entry.Error = ""
			if evt.RowCount != nil {
				count := *evt.RowCount
				entry.RowCount = &count
			}
		})
	case event.TypeTableError:
		s = upsertTable(s, evt.Table, func(entry *TableEntry) {
			entry.State = TableFailed
			entry.Error = evt.Error
		})
	case event.TypeText:
		s.LiveText = evt.Content
	case event.TypeTokenUpdate:
		if evt.Tokens != nil {
			s.Tokens = *evt.Tokens
		}
	case event.TypeClarificationRequested:
		s.Clarification = slices.Clone(evt.Questions)
	case event.TypePreferenceSuggested:
		s.Preferences.Suggested = s.Preferences.Suggested.Append(evt.Preferences...)
	case event.TypePreferenceAutoSaved:
		s.Preferences.AutoSaved = s.Preferences.AutoSaved.Append(evt.Preferences...)
	}
	if s.Status == StatusConnecting && promotes(evt.Type) {
		s.Status = StatusRunning
	}
	return s
}

// Cancel marks a non-terminal snapshot as stopped by the caller. Status keeps
// its last value; a cancelled run never reads as failed.
func Cancel(s Snapshot) Snapshot {
	if s.Terminal() || s.Cancelled {
		return s
	}
	s.Cancelled = true
	return s
}

// RecordParseError counts a frame whose payload could not be parsed.
func RecordParseError(s Snapshot) Snapshot {
	s.ParseErrors++
	return s
}

// applyTerminal sets the terminal outcome carried by evt.
func (m Machine) applyTerminal(s Snapshot, evt event.Event) Snapshot {
	if evt.Type.Completes() {
		s.Status = StatusCompleted
		s.TerminalError = ""
		s.Completion = &Completion{
			Content:     evt.Content,
			Status:      evt.Status,
			Metadata:    evt.Metadata,
			Result:      evt.Result,
			FailedItems: slices.Clone(evt.FailedItems),
			DurationMs:  evt.DurationMs,
		}
		if evt.Type == event.TypeMessageComplete && evt.Content != "" {
			s.LiveText = evt.Content
		}
		return s
	}
	s.Status = StatusFailed
	s.TerminalError = evt.Message
	s.Completion = nil
	s.Phases = m.tracker(s).FailActive(evt.Message).Entries()
	return s
}

// tracker rebuilds the phase tracker from the snapshot's entries.
func (m Machine) tracker(s Snapshot) phase.Tracker {
	return phase.Restore(m.Vocabulary, m.Visibility, s.Phases)
}

// upsertTable copies the table map and updates (or creates) one entry.
func upsertTable(s Snapshot, name string, fn func(entry *TableEntry)) Snapshot {
	if name == "" {
		return s
	}
	tables := make(map[string]TableEntry, len(s.Tables)+1)
	maps.Copy(tables, s.Tables)
	entry, ok := tables[name]
	if !ok {
		entry = TableEntry{Name: name, State: TablePending}
		s.TableOrder = append(slices.Clip(s.TableOrder), name)
	}
	fn(&entry)
	tables[name] = entry
	s.Tables = tables
	return s
}

// tableStateForPhase maps a progress phase label to a table state.
func tableStateForPhase(phaseName string) TableState {
	if strings.Contains(strings.ToLower(phaseName), "discover") {
		return TableDiscovering
	}
	return TableGenerating
}

// promotes reports whether evt shows the run is underway even without an
// explicit run_start.
func promotes(kind event.Type) bool {
	switch kind {
	case event.TypePhaseStart, event.TypePhaseComplete, event.TypeProgress,
		event.TypeTableStart, event.TypeTableComplete, event.TypeTableError,
		event.TypeText, event.TypeTokenUpdate:
		return true
	default:
		return false
	}
}

func clampPercent(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
