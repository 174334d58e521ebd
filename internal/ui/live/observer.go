package live

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"runwatch/internal/runstate"
)

// Controller runs the live UI as a stream subscriber.
type Controller struct {
	mu        sync.Mutex
	closed    bool
	snapshots chan runstate.Snapshot
	done      chan struct{}
}

// Start launches a live UI controller that writes to stdout.
func Start(stdout io.Writer, opts Options) *Controller {
	if stdout == nil {
		stdout = os.Stdout
	}
	snapshots := make(chan runstate.Snapshot, 64)
	model := NewModel(snapshots, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithAltScreen())
	controller := &Controller{
		snapshots: snapshots,
		done:      make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(controller.done)
	}()
	return controller
}

// Publish hands a snapshot to the UI without blocking the stream. When the
// UI falls behind, the oldest pending snapshot is dropped; snapshots are
// cumulative, so only the latest matters.
func (c *Controller) Publish(snapshot runstate.Snapshot) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.snapshots <- snapshot:
			return
		default:
		}
		select {
		case <-c.snapshots:
		default:
		}
	}
}

// Close stops feeding the UI; the program exits once pending snapshots drain.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.snapshots)
}

// Done is closed when the UI has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the UI has exited.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	<-c.done
}
