package client

import (
	"context"
	"strings"

	"runwatch/internal/event"
)

// RunState is the persisted view of a run returned by the state endpoint.
type RunState struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Result     any    `json:"result,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	_, ok := s.TerminalEvent()
	return ok
}

// TerminalEvent converts a finished run into the event that would have
// closed its stream. ok is false while the run is still in progress.
func (s RunState) TerminalEvent() (event.Event, bool) {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "completed", "complete", "succeeded", "success":
		return event.Event{Type: event.TypeRunComplete, Result: s.Result, DurationMs: s.DurationMs}, true
	case "failed", "error":
		message := strings.TrimSpace(s.Error)
		if message == "" {
			message = "run failed"
		}
		return event.RunError(message), true
	case "cancelled", "canceled":
		return event.RunError("run cancelled on server"), true
	default:
		return event.Event{}, false
	}
}

type reconciler struct {
	client *Client
	path   string
}

func (r reconciler) Reconcile(ctx context.Context) (event.Event, bool, error) {
	state, err := r.client.FetchRunState(ctx, r.path)
	if err != nil {
		return event.Event{}, false, err
	}
	evt, ok := state.TerminalEvent()
	return evt, ok, nil
}
