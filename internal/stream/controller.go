package stream

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"runwatch/internal/event"
	"runwatch/internal/runstate"
	"runwatch/internal/sse"
	"runwatch/internal/verbose"
)

// DefaultGrace is how long a new epoch waits before connecting.
const DefaultGrace = 25 * time.Millisecond

// DefaultChunkSize is the read buffer used for the response body.
const DefaultChunkSize = 4096

// Source opens the event-stream body for one stream attempt.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Reconciler reports a run's persisted outcome once its stream has closed
// without a terminal event. ok is false when the run is still in progress.
type Reconciler interface {
	Reconcile(ctx context.Context) (evt event.Event, ok bool, err error)
}

// Options configures a Controller.
type Options struct {
	Machine runstate.Machine
	Decoder sse.Options
	RunID   string
	// Grace delays connecting so a superseding Start can win; zero uses
	// DefaultGrace and a negative value disables the delay.
	Grace      time.Duration
	ChunkSize  int
	Reconciler Reconciler
	Logger     *verbose.Logger
}

// Controller owns the stream lifecycle for one logical run. Only the loop of
// the current epoch may publish snapshots.
type Controller struct {
	opts Options

	// publishMu serializes the epoch check, snapshot store and subscriber
	// notification. Lock order: publishMu before mu.
	publishMu sync.Mutex

	mu       sync.Mutex
	epoch    uint64
	snapshot runstate.Snapshot
	loops    map[uint64]*loop
	subs     map[int]func(runstate.Snapshot)
	nextSub  int

	wg sync.WaitGroup
}

// loop is the in-flight reader of one epoch.
type loop struct {
	epoch  uint64
	cancel context.CancelFunc
}

// New constructs an idle controller.
func New(opts Options) *Controller {
	if opts.Grace == 0 {
		opts.Grace = DefaultGrace
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Controller{
		opts:     opts,
		snapshot: opts.Machine.Initial(0, opts.RunID),
		loops:    map[uint64]*loop{},
		subs:     map[int]func(runstate.Snapshot){},
	}
}

// Start begins a new epoch reading from src and returns its id. Any earlier
// epoch is cancelled and can no longer publish. Subscribers must not call
// Start synchronously from their callback.
func (c *Controller) Start(ctx context.Context, src Source) uint64 {
	c.publishMu.Lock()
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	for _, previous := range c.loops {
		previous.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	current := &loop{epoch: epoch, cancel: cancel}
	c.loops[epoch] = current
	c.snapshot = c.opts.Machine.Initial(epoch, c.opts.RunID)
	snapshot := c.snapshot
	subs := c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snapshot)
	c.publishMu.Unlock()

	c.opts.Logger.Logf(verbose.StyleStream, "stream epoch %d: started", epoch)
	c.wg.Add(1)
	go c.run(loopCtx, current, src)
	return epoch
}

// Cancel aborts the reader of epoch, or of the current epoch when epoch is 0.
// It is safe to call repeatedly. Cancellation never marks the run failed.
func (c *Controller) Cancel(epoch uint64) {
	c.mu.Lock()
	if epoch == 0 {
		epoch = c.epoch
	}
	if l, ok := c.loops[epoch]; ok {
		l.cancel()
		c.mu.Unlock()
		return
	}
	live := epoch == c.epoch && epoch != 0 && !c.snapshot.Terminal() && !c.snapshot.Cancelled
	c.mu.Unlock()
	if !live {
		return
	}
	// The reader is already gone; mark the snapshot stopped off the caller's
	// goroutine so Cancel stays callable from a subscriber.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.publish(epoch, runstate.Cancel)
	}()
}

// Subscribe registers fn to receive every published snapshot.
func (c *Controller) Subscribe(fn func(runstate.Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() runstate.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Epoch returns the current epoch id.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Wait blocks until every reader started so far has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// run is the read loop of one epoch.
func (c *Controller) run(ctx context.Context, l *loop, src Source) {
	defer c.wg.Done()
	defer l.cancel()
	defer c.finish(ctx, l)

	if !c.settle(ctx, l.epoch) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.fail(ctx, l.epoch, "stream connection failed", ctx.Err())
		}
		return
	}
	c.opts.Logger.Logf(verbose.StyleStream, "stream epoch %d: connecting", l.epoch)
	body, err := src.Open(ctx)
	if err != nil {
		c.fail(ctx, l.epoch, "stream connection failed", err)
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()
	defer body.Close()

	decoder := sse.NewDecoder(c.opts.Decoder)
	buf := make([]byte, c.opts.ChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 && !c.consume(ctx, l.epoch, decoder, buf[:n]) {
			if c.isCurrent(l.epoch) {
				c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: cancelled, dropping chunk", l.epoch)
			} else {
				c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: superseded, dropping chunk", l.epoch)
			}
			return
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) && ctx.Err() == nil {
			c.endOfStream(ctx, l.epoch, decoder)
			return
		}
		c.fail(ctx, l.epoch, "stream read failed", readErr)
		return
	}
}

// settle waits out the grace period and reports whether epoch is still
// current and should connect.
func (c *Controller) settle(ctx context.Context, epoch uint64) bool {
	if c.opts.Grace > 0 {
		timer := time.NewTimer(c.opts.Grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: abandoned before connecting", epoch)
			return false
		case <-timer.C:
		}
	}
	if ctx.Err() != nil || !c.isCurrent(epoch) {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: superseded before connecting", epoch)
		return false
	}
	return true
}

// consume decodes one chunk and publishes the resulting snapshot. It returns
// false when the epoch is no longer current or was cancelled.
func (c *Controller) consume(ctx context.Context, epoch uint64, decoder *sse.Decoder, chunk []byte) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if ctx.Err() != nil || !c.isCurrent(epoch) {
		return false
	}
	frames := decoder.Decode(chunk)
	if len(frames) == 0 {
		return true
	}
	events := make([]event.Event, 0, len(frames))
	parseErrors := 0
	for _, frame := range frames {
		evt, err := event.Parse(frame.Data)
		if err != nil {
			parseErrors++
			c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: skipping frame: %v", epoch, err)
			continue
		}
		events = append(events, evt)
	}
	c.publishLocked(epoch, func(s runstate.Snapshot) runstate.Snapshot {
		for i := 0; i < parseErrors; i++ {
			s = runstate.RecordParseError(s)
		}
		for _, evt := range events {
			s = c.opts.Machine.Apply(s, evt)
		}
		return s
	})
	return true
}

// endOfStream handles a cleanly closed body.
func (c *Controller) endOfStream(ctx context.Context, epoch uint64, decoder *sse.Decoder) {
	if residual := decoder.Residual(); residual != "" {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: discarding %d bytes of unterminated frame", epoch, len(residual))
	}
	snapshot := c.Snapshot()
	if snapshot.Terminal() {
		c.opts.Logger.Logf(verbose.StyleSuccess, "stream epoch %d: closed (%s)", epoch, snapshot.Status)
		return
	}
	if c.opts.Reconciler == nil {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: closed before a terminal event", epoch)
		return
	}
	evt, ok, err := c.opts.Reconciler.Reconcile(ctx)
	if err != nil {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: reconcile failed: %v", epoch, err)
		return
	}
	if !ok {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: closed while run still in progress", epoch)
		return
	}
	c.opts.Logger.Logf(verbose.StyleStream, "stream epoch %d: reconciled %s from run state", epoch, evt.Type)
	c.publish(epoch, func(s runstate.Snapshot) runstate.Snapshot {
		return c.opts.Machine.Apply(s, evt)
	})
}

// fail reports a connection-level error, unless it was caused by cancellation.
func (c *Controller) fail(ctx context.Context, epoch uint64, what string, err error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		c.opts.Logger.Logf(verbose.StyleWarning, "stream epoch %d: cancelled", epoch)
		return
	}
	message := what + ": " + err.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = what + ": deadline exceeded"
	}
	c.opts.Logger.Logf(verbose.StyleError, "stream epoch %d: %s", epoch, message)
	c.publish(epoch, func(s runstate.Snapshot) runstate.Snapshot {
		return c.opts.Machine.Apply(s, event.RunError(message))
	})
}

// finish unregisters the loop and, if its context was cancelled while it was
// current, publishes the stopped snapshot.
func (c *Controller) finish(ctx context.Context, l *loop) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	delete(c.loops, l.epoch)
	stopped := errors.Is(ctx.Err(), context.Canceled) && c.epoch == l.epoch &&
		!c.snapshot.Terminal() && !c.snapshot.Cancelled
	if !stopped {
		c.mu.Unlock()
		return
	}
	c.snapshot = runstate.Cancel(c.snapshot)
	snapshot := c.snapshot
	subs := c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snapshot)
}

// publish applies fn to the current snapshot if epoch is still current.
func (c *Controller) publish(epoch uint64, fn func(runstate.Snapshot) runstate.Snapshot) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.publishLocked(epoch, fn)
}

// publishLocked is publish with publishMu already held.
func (c *Controller) publishLocked(epoch uint64, fn func(runstate.Snapshot) runstate.Snapshot) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	next := fn(c.snapshot)
	next.Epoch = epoch
	c.snapshot = next
	subs := c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, next)
	return true
}

func (c *Controller) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// subscribersLocked returns subscribers in registration order.
func (c *Controller) subscribersLocked() []func(runstate.Snapshot) {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(runstate.Snapshot), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

func notify(subs []func(runstate.Snapshot), snapshot runstate.Snapshot) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
