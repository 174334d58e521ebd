package runstate

import (
	"testing"
	"time"

	"runwatch/internal/event"
	"runwatch/internal/phase"
)

var agentMachine = Machine{
	Vocabulary: phase.NewVocabulary("planner", "navigator", "sql_builder", "executor", "verifier", "explainer"),
	Visibility: phase.VisibilityObserved,
	Terminal:   TerminalStrict,
}

// TestApplyLifecycle verifies the connecting -> running -> completed path.
func TestApplyLifecycle(t *testing.T) {
	state := agentMachine.Initial(1, "msg-1")
	if state.Status != StatusConnecting {
		t.Fatalf("expected connecting, got %s", state.Status)
	}
	state = apply(agentMachine, state,
		event.Event{Type: event.TypeRunStart},
		phaseStart("planner", "Planning"),
		event.Event{Type: event.TypeText, Content: "Hel"},
		event.Event{Type: event.TypeText, Content: "Hello"},
		event.Event{Type: event.TypeMessageComplete, Content: "Hello world", Status: "ok"},
	)
	if state.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.LiveText != "Hello world" {
		t.Fatalf("expected final content as live text, got %q", state.LiveText)
	}
	if state.Completion == nil || state.Completion.Status != "ok" {
		t.Fatalf("expected completion fields, got %+v", state.Completion)
	}
	if state.RawLog.Len() != 5 {
		t.Fatalf("expected every event in raw log, got %d", state.RawLog.Len())
	}
}

// TestApplyTextReplaces verifies cumulative text is replaced, not appended.
func TestApplyTextReplaces(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeText, Content: "The"},
		event.Event{Type: event.TypeText, Content: "The answer"},
	)
	if state.LiveText != "The answer" {
		t.Fatalf("unexpected live text %q", state.LiveText)
	}
	if state.Status != StatusRunning {
		t.Fatalf("expected text to promote to running, got %s", state.Status)
	}
}

// TestApplyTokensReplace verifies token totals are replaced wholesale.
func TestApplyTokensReplace(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeTokenUpdate, Tokens: &event.Tokens{Prompt: 10, Completion: 5, Total: 15}},
		event.Event{Type: event.TypeTokenUpdate, Tokens: &event.Tokens{Prompt: 12, Completion: 13, Total: 25}},
	)
	if state.Tokens.Total != 25 || state.Tokens.Prompt != 12 {
		t.Fatalf("unexpected tokens %+v", state.Tokens)
	}
}

// TestApplyPhaseScenario verifies phases reach the snapshot in order.
func TestApplyPhaseScenario(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		phaseStart("planner", ""),
		event.Event{Type: event.TypePhaseComplete, Phase: "planner"},
		phaseStart("navigator", ""),
		phaseStart("make_coffee", "brewing"),
	)
	if len(state.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %+v", state.Phases)
	}
	if state.Phases[0].ID != "planner" || state.Phases[0].State != phase.StateComplete {
		t.Fatalf("unexpected first phase %+v", state.Phases[0])
	}
	current, ok := state.CurrentPhase()
	if !ok || current.ID != "navigator" {
		t.Fatalf("expected navigator active, got %+v", current)
	}
}

// TestApplyTerminalStrict verifies terminal outcomes are not overwritten.
func TestApplyTerminalStrict(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeRunStart},
		event.Event{Type: event.TypeRunComplete},
		event.Event{Type: event.TypeRunError, Message: "late failure"},
		event.Event{Type: event.TypeText, Content: "late text"},
	)
	if state.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.TerminalError != "" || state.LiveText != "" {
		t.Fatalf("terminal snapshot mutated: %+v", state)
	}
	if state.RawLog.Len() != 4 {
		t.Fatalf("expected late events logged, got %d", state.RawLog.Len())
	}
}

// TestApplyTerminalLastWins verifies the permissive overwrite policy.
func TestApplyTerminalLastWins(t *testing.T) {
	machine := agentMachine
	machine.Terminal = TerminalLastWins
	state := apply(machine, machine.Initial(1, ""),
		event.Event{Type: event.TypeRunComplete},
		event.Event{Type: event.TypeRunError, Message: "late failure"},
		event.Event{Type: event.TypeText, Content: "ignored"},
	)
	if state.Status != StatusFailed || state.TerminalError != "late failure" {
		t.Fatalf("expected failed overwrite, got %s %q", state.Status, state.TerminalError)
	}
	if state.Completion != nil || state.LiveText != "" {
		t.Fatalf("unexpected completion state %+v", state)
	}
}

// TestApplyUpstreamError verifies failures carry the server message verbatim.
func TestApplyUpstreamError(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		phaseStart("planner", ""),
		event.Event{Type: event.TypeMessageError, Message: "Model overloaded (529)"},
	)
	if state.Status != StatusFailed || state.TerminalError != "Model overloaded (529)" {
		t.Fatalf("unexpected failure state %s %q", state.Status, state.TerminalError)
	}
	if state.Phases[0].State != phase.StateError {
		t.Fatalf("expected active phase to fail, got %+v", state.Phases[0])
	}
}

// TestApplyTables verifies per-table upserts never duplicate entries.
func TestApplyTables(t *testing.T) {
	rows := 42
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeTableStart, Table: "orders"},
		progress(10, "orders", "generating"),
		event.Event{Type: event.TypeTableStart, Table: "customers"},
		event.Event{Type: event.TypeTableComplete, Table: "orders", RowCount: &rows},
		progress(60, "orders", "discovering"),
		event.Event{Type: event.TypeTableError, Table: "customers", Error: "no access"},
		progress(150, "", ""),
	)
	if len(state.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(state.Tables))
	}
	orders, _ := state.Table("orders")
	if orders.State != TableCompleted || orders.RowCount == nil || *orders.RowCount != 42 {
		t.Fatalf("unexpected orders entry %+v", orders)
	}
	customers, _ := state.Table("customers")
	if customers.State != TableFailed || customers.Error != "no access" {
		t.Fatalf("unexpected customers entry %+v", customers)
	}
	if state.PercentComplete != 100 {
		t.Fatalf("expected clamped percent, got %v", state.PercentComplete)
	}
	names := state.TableNames()
	if len(names) != 2 || names[0] != "orders" || names[1] != "customers" {
		t.Fatalf("unexpected table order %v", names)
	}
}

// TestApplyProgressDerivesState verifies progress phases map to table states.
func TestApplyProgressDerivesState(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""), progress(5, "orders", "Discovering schema"))
	if entry, _ := state.Table("orders"); entry.State != TableDiscovering {
		t.Fatalf("expected discovering, got %s", entry.State)
	}
	state = apply(agentMachine, state, progress(50, "orders", "writing"))
	if entry, _ := state.Table("orders"); entry.State != TableGenerating {
		t.Fatalf("expected generating, got %s", entry.State)
	}
}

// TestApplySideLists verifies clarification and preferences leave status alone.
func TestApplySideLists(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeRunStart},
		event.Event{Type: event.TypeClarificationRequested, Questions: []event.Question{{Text: "Which region?"}}},
		event.Event{Type: event.TypePreferenceSuggested, Preferences: []event.Preference{{Key: "currency"}}},
		event.Event{Type: event.TypePreferenceAutoSaved, Preferences: []event.Preference{{Key: "timezone"}}},
	)
	if state.Status != StatusRunning {
		t.Fatalf("expected running, got %s", state.Status)
	}
	if len(state.Clarification) != 1 || state.Preferences.Suggested.Len() != 1 || state.Preferences.AutoSaved.Len() != 1 {
		t.Fatalf("unexpected side lists %+v %+v", state.Clarification, state.Preferences)
	}
}

// TestApplyClarificationKeepsStatus verifies a clarification request records
// the questions without starting the run.
func TestApplyClarificationKeepsStatus(t *testing.T) {
	state := agentMachine.Apply(agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeClarificationRequested, Questions: []event.Question{{Text: "Which region?"}}})
	if state.Status != StatusConnecting {
		t.Fatalf("expected connecting, got %s", state.Status)
	}
	if len(state.Clarification) != 1 || state.Clarification[0].Text != "Which region?" {
		t.Fatalf("unexpected clarification %+v", state.Clarification)
	}
}

// TestApplyLongStream verifies folding a long stream stays linear.
func TestApplyLongStream(t *testing.T) {
	const total = 50000
	state := agentMachine.Initial(1, "")
	started := time.Now()
	for i := 0; i < total; i++ {
		state = agentMachine.Apply(state, event.Event{Type: event.TypeText, Content: "chunk"})
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("folding %d events took %s", total, elapsed)
	}
	if state.RawLog.Len() != total || state.LiveText != "chunk" {
		t.Fatalf("unexpected final state: %d entries, text %q", state.RawLog.Len(), state.LiveText)
	}
}

// TestApplyUnknownOnlyLogs verifies unknown events have no other effect.
func TestApplyUnknownOnlyLogs(t *testing.T) {
	initial := agentMachine.Initial(1, "")
	state := agentMachine.Apply(initial, event.Event{Type: event.TypeUnknown, Raw: `{"type":"chart"}`})
	if state.Status != StatusConnecting || state.RawLog.Len() != 1 {
		t.Fatalf("unexpected state %+v", state)
	}
}

// TestApplyRunStartOnlyFromConnecting verifies a repeated run_start is inert.
func TestApplyRunStartOnlyFromConnecting(t *testing.T) {
	state := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeRunStart},
		event.Event{Type: event.TypeRunError, Message: "boom"},
		event.Event{Type: event.TypeRunStart},
	)
	if state.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
}

// TestApplyDoesNotMutatePrevious verifies snapshots are immutable values.
func TestApplyDoesNotMutatePrevious(t *testing.T) {
	base := apply(agentMachine, agentMachine.Initial(1, ""),
		event.Event{Type: event.TypeTableStart, Table: "orders"},
		phaseStart("planner", "first"),
	)
	first := agentMachine.Apply(base, event.Event{Type: event.TypeTableError, Table: "orders", Error: "x"})
	second := agentMachine.Apply(base, event.Event{Type: event.TypePhaseComplete, Phase: "planner"})
	if entry, _ := base.Table("orders"); entry.State != TableDiscovering {
		t.Fatalf("base table mutated: %+v", entry)
	}
	if base.Phases[0].State != phase.StateActive {
		t.Fatalf("base phases mutated: %+v", base.Phases)
	}
	if base.RawLog.Len() != 2 || first.RawLog.Len() != 3 || second.RawLog.Len() != 3 {
		t.Fatalf("unexpected raw log lengths %d %d %d", base.RawLog.Len(), first.RawLog.Len(), second.RawLog.Len())
	}
	if first.RawLog.At(2).Type != event.TypeTableError || second.RawLog.At(2).Type != event.TypePhaseComplete {
		t.Fatalf("raw logs share backing storage")
	}
}

// TestCancel verifies cancellation is distinct from failure.
func TestCancel(t *testing.T) {
	running := apply(agentMachine, agentMachine.Initial(1, ""), event.Event{Type: event.TypeRunStart})
	cancelled := Cancel(running)
	if !cancelled.Stopped() || cancelled.Status != StatusRunning || cancelled.TerminalError != "" {
		t.Fatalf("unexpected cancelled state %+v", cancelled)
	}
	done := apply(agentMachine, running, event.Event{Type: event.TypeRunComplete})
	if Cancel(done).Cancelled {
		t.Fatalf("terminal snapshots must not be cancelled")
	}
}

// TestPreseedInitial verifies pre-seeded phases appear in the first snapshot.
func TestPreseedInitial(t *testing.T) {
	machine := Machine{
		Vocabulary: phase.NewVocabulary("parsing", "converting", "uploading", "connecting"),
		Visibility: phase.VisibilityPreseed,
	}
	state := machine.Initial(3, "imp-1")
	if len(state.Phases) != 4 || state.Phases[3].State != phase.StatePending {
		t.Fatalf("unexpected initial phases %+v", state.Phases)
	}
	if state.Epoch != 3 || state.RunID != "imp-1" {
		t.Fatalf("unexpected identity %d %q", state.Epoch, state.RunID)
	}
}

// TestParseTerminalPolicy verifies policy names.
func TestParseTerminalPolicy(t *testing.T) {
	if policy, err := ParseTerminalPolicy(""); err != nil || policy != TerminalStrict {
		t.Fatalf("expected strict default, got %q %v", policy, err)
	}
	if policy, err := ParseTerminalPolicy("last_wins"); err != nil || policy != TerminalLastWins {
		t.Fatalf("expected last_wins, got %q %v", policy, err)
	}
	if _, err := ParseTerminalPolicy("first"); err == nil {
		t.Fatalf("expected error")
	}
}

func apply(machine Machine, state Snapshot, events ...event.Event) Snapshot {
	for _, evt := range events {
		state = machine.Apply(state, evt)
	}
	return state
}

func phaseStart(id, description string) event.Event {
	return event.Event{Type: event.TypePhaseStart, Phase: id, Description: description}
}

func progress(percent float64, table, phaseName string) event.Event {
	return event.Event{Type: event.TypeProgress, Percent: &percent, Table: table, Phase: phaseName}
}
