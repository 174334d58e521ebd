package runstate

import (
	"sort"

	"runwatch/internal/event"
	"runwatch/internal/phase"
)

// Status is the run-level lifecycle state.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TableState is the progress state of one pipeline item.
type TableState string

const (
	TablePending     TableState = "pending"
	TableDiscovering TableState = "discovering"
	TableGenerating  TableState = "generating"
	TableCompleted   TableState = "completed"
	TableFailed      TableState = "failed"
)

// settled reports whether the table reached a final state.
func (s TableState) settled() bool {
	return s == TableCompleted || s == TableFailed
}

// TableEntry tracks one item of a multi-table pipeline.
type TableEntry struct {
	Name     string     `json:"name"`
	State    TableState `json:"state"`
	Error    string     `json:"error,omitempty"`
	RowCount *int       `json:"rowCount,omitempty"`
}

// Completion holds the fields attached by a successful terminal event.
type Completion struct {
	Content     string             `json:"content,omitempty"`
	Status      string             `json:"status,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Result      any                `json:"result,omitempty"`
	FailedItems []event.FailedItem `json:"failedItems,omitempty"`
	DurationMs  *int64             `json:"durationMs,omitempty"`
}

// Preferences collects preference events, independent of run status.
type Preferences struct {
	Suggested Log[event.Preference] `json:"suggested"`
	AutoSaved Log[event.Preference] `json:"autoSaved"`
}

// Snapshot is the immutable state of a run at one point in time. Apply never
// modifies a snapshot in place; callers may keep old values.
type Snapshot struct {
	Epoch           uint64                `json:"epoch"`
	RunID           string                `json:"runId,omitempty"`
	Status          Status                `json:"status"`
	Phases          []phase.Entry         `json:"phases"`
	Tables          map[string]TableEntry `json:"tables"`
	TableOrder      []string              `json:"tableOrder,omitempty"`
	LiveText        string                `json:"liveText"`
	Tokens          event.Tokens          `json:"tokens"`
	PercentComplete float64               `json:"percentComplete"`
	Clarification   []event.Question      `json:"clarification,omitempty"`
	TerminalError   string                `json:"terminalError,omitempty"`
	Completion      *Completion           `json:"completion,omitempty"`
	Preferences     Preferences           `json:"preferences"`
	Cancelled       bool                  `json:"cancelled"`
	RawLog          Log[event.Event]      `json:"rawLog"`
	ParseErrors     int                   `json:"parseErrors"`
}

// Terminal reports whether the run completed or failed.
func (s Snapshot) Terminal() bool {
	return s.Status.Terminal()
}

// Stopped reports whether the run was cancelled before reaching a terminal state.
func (s Snapshot) Stopped() bool {
	return s.Cancelled && !s.Terminal()
}

// CurrentPhase returns the first active phase.
func (s Snapshot) CurrentPhase() (phase.Entry, bool) {
	return phase.Restore(phase.Vocabulary{}, phase.VisibilityObserved, s.Phases).CurrentActive()
}

// TableNames lists tables in arrival order.
func (s Snapshot) TableNames() []string {
	if len(s.TableOrder) == len(s.Tables) {
		return append([]string(nil), s.TableOrder...)
	}
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the entry for name.
func (s Snapshot) Table(name string) (TableEntry, bool) {
	entry, ok := s.Tables[name]
	return entry, ok
}
