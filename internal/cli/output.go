package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"runwatch/internal/phase"
	"runwatch/internal/runstate"
	"runwatch/internal/ui/live"
)

// plainPrinter writes one line per visible snapshot change.
type plainPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	prev runstate.Snapshot
}

func newPlainPrinter(out io.Writer) *plainPrinter {
	return &plainPrinter{out: out}
}

// Publish implements a stream subscriber.
func (p *plainPrinter) Publish(snapshot runstate.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range live.Transitions(p.prev, snapshot) {
		fmt.Fprintf(p.out, "%s: %s\n", runLabel(snapshot), line)
	}
	p.prev = snapshot
}

func runLabel(s runstate.Snapshot) string {
	if s.RunID == "" {
		return "run"
	}
	return s.RunID
}

// printSummary renders the final snapshot for humans.
func printSummary(w io.Writer, s runstate.Snapshot) {
	status := string(s.Status)
	if s.Stopped() {
		status = "stopped (" + status + ")"
	}
	fmt.Fprintf(w, "Run %s: %s\n", runLabel(s), status)
	if s.TerminalError != "" {
		fmt.Fprintf(w, "Error: %s\n", s.TerminalError)
	}
	if len(s.Phases) > 0 {
		parts := make([]string, 0, len(s.Phases))
		for _, entry := range s.Phases {
			parts = append(parts, entry.ID+"="+string(entry.State))
		}
		fmt.Fprintf(w, "Phases: %s\n", strings.Join(parts, " "))
	}
	if len(s.Tables) > 0 {
		counts := map[runstate.TableState]int{}
		for _, entry := range s.Tables {
			counts[entry.State]++
		}
		fmt.Fprintf(w, "Tables: %d (%d completed, %d failed)\n",
			len(s.Tables), counts[runstate.TableCompleted], counts[runstate.TableFailed])
	}
	if s.Tokens.Total > 0 {
		fmt.Fprintf(w, "Tokens: %d (%d prompt, %d completion)\n", s.Tokens.Total, s.Tokens.Prompt, s.Tokens.Completion)
	}
	if s.Completion != nil && s.Completion.DurationMs != nil {
		fmt.Fprintf(w, "Duration: %dms\n", *s.Completion.DurationMs)
	}
	if s.ParseErrors > 0 {
		fmt.Fprintf(w, "Skipped frames: %d\n", s.ParseErrors)
	}
	for _, question := range s.Clarification {
		fmt.Fprintf(w, "Question: %s\n", question.Text)
	}
	if text := strings.TrimSpace(s.LiveText); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
}

// exitCodeFor maps a final snapshot to a process exit code.
func exitCodeFor(s runstate.Snapshot) int {
	if s.Status == runstate.StatusCompleted {
		return ExitOK
	}
	return ExitError
}

// unfinished reports a run whose stream ended without an outcome.
func unfinished(s runstate.Snapshot) bool {
	return !s.Terminal() && !s.Stopped()
}

// activePhases lists phases still running, for diagnostics.
func activePhases(s runstate.Snapshot) []string {
	var ids []string
	for _, entry := range s.Phases {
		if entry.State == phase.StateActive {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
