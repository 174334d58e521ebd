package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"runwatch/internal/event"
	"runwatch/internal/phase"
	"runwatch/internal/runstate"
	"runwatch/internal/testutil"
	"runwatch/internal/verbose"
)

var agentMachine = runstate.Machine{
	Vocabulary: phase.NewVocabulary("planner", "navigator", "sql_builder", "executor", "verifier", "explainer"),
	Visibility: phase.VisibilityObserved,
	Terminal:   runstate.TerminalStrict,
}

// TestControllerReconstructsRun verifies a split stream folds into a final snapshot.
func TestControllerReconstructsRun(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1, RunID: "msg-1"})
	rec := record(controller)
	src := testutil.ChunkSource(
		": connected\n\ndata: {\"type\":\"run_start\"}\n\ndata: {\"type\":\"phase_st",
		"art\",\"phase\":\"planner\"}\n\ndata: {\"type\":\"text\",\"content\":\"Hel",
		"lo\"}\n\n: ping\n\ndata: {\"type\":\"token_update\",\"prompt\":3,\"completion\":2,\"total\":5}\n\n",
		"data: {\"type\":\"phase_complete\",\"phase\":\"planner\"}\n\ndata: {\"type\":\"message_complete\",\"content\":\"Hello!\"}\n\n",
	)
	epoch := controller.Start(context.Background(), src)
	waitIdle(t, controller)

	final := controller.Snapshot()
	if final.Epoch != epoch || final.RunID != "msg-1" {
		t.Fatalf("unexpected identity epoch=%d run=%q", final.Epoch, final.RunID)
	}
	if final.Status != runstate.StatusCompleted || final.LiveText != "Hello!" {
		t.Fatalf("unexpected final state %s %q", final.Status, final.LiveText)
	}
	if final.Tokens.Total != 5 {
		t.Fatalf("unexpected tokens %+v", final.Tokens)
	}
	if len(final.Phases) != 1 || final.Phases[0].State != phase.StateComplete {
		t.Fatalf("unexpected phases %+v", final.Phases)
	}
	snapshots := rec.all()
	if len(snapshots) < 2 || snapshots[0].Status != runstate.StatusConnecting {
		t.Fatalf("expected connecting snapshot first, got %d snapshots", len(snapshots))
	}
	for _, snapshot := range snapshots {
		if snapshot.Epoch != epoch {
			t.Fatalf("snapshot tagged with epoch %d, want %d", snapshot.Epoch, epoch)
		}
	}
}

// TestControllerSkipsMalformedFrames verifies parse errors do not stop the stream.
func TestControllerSkipsMalformedFrames(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	src := testutil.ChunkSource(
		"data: {\"type\":\"run_start\"}\n\n",
		"data: {not json\n\ndata: [DONE]\n\n",
		"data: {\"type\":\"mystery\"}\n\ndata: {\"type\":\"run_complete\",\"durationMs\":10}\n\n",
	)
	controller.Start(context.Background(), src)
	waitIdle(t, controller)

	final := controller.Snapshot()
	if final.Status != runstate.StatusCompleted {
		t.Fatalf("expected completed, got %s (%q)", final.Status, final.TerminalError)
	}
	if final.ParseErrors != 2 {
		t.Fatalf("expected 2 parse errors, got %d", final.ParseErrors)
	}
	if final.RawLog.Len() != 3 || final.RawLog.At(1).Type != event.TypeUnknown {
		t.Fatalf("unexpected raw log %+v", final.RawLog.Items())
	}
}

// TestControllerCancelIsNotFailure verifies cancellation leaves a stopped run.
func TestControllerCancelIsNotFailure(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	src := testutil.NewScriptedSource()
	controller.Start(context.Background(), src)
	waitOpened(t, src)
	src.Send("data: {\"type\":\"run_start\"}\n\n")
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return controller.Snapshot().Status == runstate.StatusRunning
	}, "expected running status")

	controller.Cancel(0)
	controller.Cancel(0)
	waitIdle(t, controller)

	final := controller.Snapshot()
	if !final.Stopped() {
		t.Fatalf("expected stopped snapshot, got %+v", final)
	}
	if final.Status == runstate.StatusFailed || final.Status == runstate.StatusCompleted || final.TerminalError != "" {
		t.Fatalf("cancellation must not be terminal, got %s %q", final.Status, final.TerminalError)
	}
	if !src.Closed() {
		t.Fatalf("expected body to be closed on cancel")
	}
}

// TestControllerCancelDuringGrace verifies a cancelled epoch never connects.
func TestControllerCancelDuringGrace(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: time.Second})
	src := testutil.NewScriptedSource()
	controller.Start(context.Background(), src)
	controller.Cancel(0)
	waitIdle(t, controller)
	if src.Opens() != 0 {
		t.Fatalf("expected no connection, got %d opens", src.Opens())
	}
	if final := controller.Snapshot(); !final.Cancelled || final.Status != runstate.StatusConnecting {
		t.Fatalf("unexpected snapshot %+v", final)
	}
}

// TestControllerCancelAfterStreamEnds verifies cancel still marks a dangling run.
func TestControllerCancelAfterStreamEnds(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	controller.Start(context.Background(), testutil.ChunkSource("data: {\"type\":\"run_start\"}\n\n"))
	waitIdle(t, controller)
	if controller.Snapshot().Cancelled {
		t.Fatalf("unexpected cancelled flag before cancel")
	}
	controller.Cancel(0)
	waitIdle(t, controller)
	if final := controller.Snapshot(); !final.Stopped() || final.Status != runstate.StatusRunning {
		t.Fatalf("expected stopped running snapshot, got %+v", final)
	}
}

// TestControllerConnectionErrors verifies transport failures end in failed.
func TestControllerConnectionErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		controller := New(Options{Machine: agentMachine, Grace: -1})
		src := testutil.NewScriptedSource()
		src.OpenErr = errors.New("http 503: upstream unavailable")
		controller.Start(context.Background(), src)
		waitIdle(t, controller)
		final := controller.Snapshot()
		if final.Status != runstate.StatusFailed || !strings.Contains(final.TerminalError, "upstream unavailable") {
			t.Fatalf("unexpected snapshot %s %q", final.Status, final.TerminalError)
		}
		if final.Cancelled {
			t.Fatalf("connection failure must not read as cancellation")
		}
	})
	t.Run("read", func(t *testing.T) {
		controller := New(Options{Machine: agentMachine, Grace: -1})
		src := testutil.NewScriptedSource()
		src.Send("data: {\"type\":\"run_start\"}\n\n")
		src.End(errors.New("connection reset by peer"))
		controller.Start(context.Background(), src)
		waitIdle(t, controller)
		final := controller.Snapshot()
		if final.Status != runstate.StatusFailed || !strings.Contains(final.TerminalError, "stream read failed: connection reset") {
			t.Fatalf("unexpected snapshot %s %q", final.Status, final.TerminalError)
		}
	})
	t.Run("after terminal", func(t *testing.T) {
		controller := New(Options{Machine: agentMachine, Grace: -1})
		src := testutil.NewScriptedSource()
		src.Send("data: {\"type\":\"run_complete\"}\n\n")
		src.End(errors.New("unexpected EOF"))
		controller.Start(context.Background(), src)
		waitIdle(t, controller)
		if final := controller.Snapshot(); final.Status != runstate.StatusCompleted || final.TerminalError != "" {
			t.Fatalf("late transport error must not override completion: %+v", final)
		}
	})
}

// TestControllerDiscardsStaleEpoch verifies chunks read by a superseded loop
// never reach the snapshot or subscribers.
func TestControllerDiscardsStaleEpoch(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	first := testutil.NewScriptedSource()
	first.IgnoreClose = true
	firstEpoch := controller.Start(context.Background(), first)
	waitOpened(t, first)
	first.Send("data: {\"type\":\"run_start\"}\n\n")
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return controller.Snapshot().Status == runstate.StatusRunning
	}, "expected first epoch running")

	second := testutil.NewScriptedSource()
	rec := record(controller)
	secondEpoch := controller.Start(context.Background(), second)
	if secondEpoch <= firstEpoch {
		t.Fatalf("expected increasing epochs, got %d then %d", firstEpoch, secondEpoch)
	}

	first.Send("data: {\"type\":\"text\",\"content\":\"stale\"}\n\ndata: {\"type\":\"run_complete\"}\n\n")
	first.End(nil)
	second.End(nil)
	waitIdle(t, controller)

	for _, snapshot := range rec.all() {
		if snapshot.Epoch != secondEpoch {
			t.Fatalf("published snapshot from epoch %d after restart", snapshot.Epoch)
		}
		if snapshot.LiveText == "stale" || snapshot.Status == runstate.StatusCompleted {
			t.Fatalf("stale chunk mutated snapshot: %+v", snapshot)
		}
	}
	if final := controller.Snapshot(); final.Epoch != secondEpoch || final.Status != runstate.StatusConnecting {
		t.Fatalf("unexpected final snapshot %+v", final)
	}
}

// TestControllerGraceSuppressesDuplicateStart verifies only the last of two
// rapid starts connects.
func TestControllerGraceSuppressesDuplicateStart(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: 30 * time.Millisecond})
	first := testutil.NewScriptedSource()
	second := testutil.ChunkSource("data: {\"type\":\"run_start\"}\n\ndata: {\"type\":\"run_complete\"}\n\n")
	controller.Start(context.Background(), first)
	controller.Start(context.Background(), second)
	waitIdle(t, controller)
	if first.Opens() != 0 {
		t.Fatalf("superseded epoch connected %d times", first.Opens())
	}
	if second.Opens() != 1 {
		t.Fatalf("expected current epoch to connect once, got %d", second.Opens())
	}
	if controller.Snapshot().Status != runstate.StatusCompleted {
		t.Fatalf("expected completed, got %s", controller.Snapshot().Status)
	}
}

// TestControllerReconcilesOnClose verifies persisted state settles a dangling run.
func TestControllerReconcilesOnClose(t *testing.T) {
	reconciler := reconcilerFunc(func(ctx context.Context) (event.Event, bool, error) {
		return event.Event{Type: event.TypeRunError, Message: "worker crashed"}, true, nil
	})
	controller := New(Options{Machine: agentMachine, Grace: -1, Reconciler: reconciler})
	controller.Start(context.Background(), testutil.ChunkSource("data: {\"type\":\"run_start\"}\n\n"))
	waitIdle(t, controller)
	if final := controller.Snapshot(); final.Status != runstate.StatusFailed || final.TerminalError != "worker crashed" {
		t.Fatalf("unexpected snapshot %s %q", final.Status, final.TerminalError)
	}
}

// TestControllerUnsubscribe verifies callbacks stop after unsubscribing.
func TestControllerUnsubscribe(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	var mu sync.Mutex
	calls := 0
	unsubscribe := controller.Subscribe(func(runstate.Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsubscribe()
	unsubscribe()
	controller.Start(context.Background(), testutil.ChunkSource("data: {\"type\":\"run_start\"}\n\n"))
	waitIdle(t, controller)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no callbacks, got %d", calls)
	}
}

// TestControllerCancelFromSubscriber verifies Cancel is callable inside a callback.
func TestControllerCancelFromSubscriber(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: -1})
	controller.Subscribe(func(snapshot runstate.Snapshot) {
		if len(snapshot.Clarification) > 0 {
			controller.Cancel(snapshot.Epoch)
		}
	})
	src := testutil.NewScriptedSource()
	controller.Start(context.Background(), src)
	src.Send("data: {\"type\":\"clarification_requested\",\"questions\":[\"Which region?\"]}\n\n")
	waitIdle(t, controller)
	if final := controller.Snapshot(); !final.Stopped() || len(final.Clarification) != 1 {
		t.Fatalf("unexpected snapshot %+v", final)
	}
}

type reconcilerFunc func(ctx context.Context) (event.Event, bool, error)

func (f reconcilerFunc) Reconcile(ctx context.Context) (event.Event, bool, error) {
	return f(ctx)
}

// TestControllerDeadlineDuringGrace verifies a deadline that expires before
// connecting fails the run instead of leaving it connecting.
func TestControllerDeadlineDuringGrace(t *testing.T) {
	controller := New(Options{Machine: agentMachine, Grace: time.Second})
	src := testutil.NewScriptedSource()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	controller.Start(ctx, src)
	waitIdle(t, controller)

	final := controller.Snapshot()
	if src.Opens() != 0 {
		t.Fatalf("expected no connection, got %d", src.Opens())
	}
	if final.Status != runstate.StatusFailed || !strings.Contains(final.TerminalError, "deadline exceeded") {
		t.Fatalf("expected deadline failure, got %s %q", final.Status, final.TerminalError)
	}
	if final.Cancelled {
		t.Fatalf("deadline must not read as a user stop")
	}
}

// TestControllerLogsWhyChunksAreDropped verifies cancelled and superseded
// readers are told apart in the log.
func TestControllerLogsWhyChunksAreDropped(t *testing.T) {
	var logs lockedBuffer
	controller := New(Options{Machine: agentMachine, Grace: -1, Logger: verbose.New(&logs, true)})
	src := testutil.NewScriptedSource()
	src.IgnoreClose = true
	controller.Start(context.Background(), src)
	waitOpened(t, src)
	controller.Cancel(0)
	src.Send("data: {\"type\":\"run_start\"}\n\n")
	waitIdle(t, controller)
	if out := logs.String(); !strings.Contains(out, "cancelled, dropping chunk") || strings.Contains(out, "superseded") {
		t.Fatalf("unexpected log for a cancelled reader:\n%s", out)
	}
	if !controller.Snapshot().Stopped() {
		t.Fatalf("expected stopped snapshot")
	}

	logs.Reset()
	first := testutil.NewScriptedSource()
	first.IgnoreClose = true
	controller.Start(context.Background(), first)
	waitOpened(t, first)
	second := testutil.NewScriptedSource()
	controller.Start(context.Background(), second)
	first.Send("data: {\"type\":\"run_start\"}\n\n")
	second.End(nil)
	waitIdle(t, controller)
	if out := logs.String(); !strings.Contains(out, "superseded, dropping chunk") {
		t.Fatalf("unexpected log for a superseded reader:\n%s", out)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type recorder struct {
	mu        sync.Mutex
	snapshots []runstate.Snapshot
}

func record(controller *Controller) *recorder {
	rec := &recorder{}
	controller.Subscribe(func(snapshot runstate.Snapshot) {
		rec.mu.Lock()
		rec.snapshots = append(rec.snapshots, snapshot)
		rec.mu.Unlock()
	})
	return rec
}

func (r *recorder) all() []runstate.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runstate.Snapshot(nil), r.snapshots...)
}

// waitIdle waits for every reader with a timeout.
func waitIdle(t *testing.T, controller *Controller) {
	t.Helper()
	ctx := testutil.Context(t, 2*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		controller.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("controller did not become idle")
	}
}

func waitOpened(t *testing.T, src *testutil.ScriptedSource) {
	t.Helper()
	select {
	case <-src.Opened():
	case <-time.After(2 * time.Second):
		t.Fatalf("source was never opened")
	}
}
