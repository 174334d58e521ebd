package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

// DefaultTimeout bounds waits that pass no explicit timeout.
const DefaultTimeout = 5 * time.Second

// PollInterval is how often Poll re-checks its condition.
const PollInterval = 5 * time.Millisecond

// ErrTimeout is returned by Poll when ctx ends before the condition holds.
var ErrTimeout = errors.New("condition not met before timeout")

// Context returns a context that ends after timeout, one second before the
// test deadline, or when the test finishes, whichever comes first.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if d, ok := t.(interface{ Deadline() (time.Time, bool) }); ok {
		if deadline, ok := d.Deadline(); ok {
			if remaining := time.Until(deadline) - time.Second; remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Poll checks fn every PollInterval until it holds or ctx ends.
func Poll(ctx context.Context, fn func() bool) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		if fn() {
			return nil
		}
		select {
		case <-ctx.Done():
			if fn() {
				return nil
			}
			return ErrTimeout
		case <-ticker.C:
		}
	}
}

// Eventually fails the test with msg unless fn holds within timeout.
func Eventually(t testing.TB, timeout, interval time.Duration, fn func() bool, msg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !fn() {
		select {
		case <-ctx.Done():
			if msg == "" {
				msg = ErrTimeout.Error()
			}
			t.Fatalf("%s", msg)
			return
		case <-ticker.C:
		}
	}
}
