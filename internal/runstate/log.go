package runstate

import (
	"slices"
	"sync"

	json "github.com/goccy/go-json"
)

// Log is an append-only list shared by successive snapshots. Each value sees
// a prefix of one backing store, so appending to the newest snapshot is
// amortized O(1) and older snapshots keep seeing exactly what they saw.
// Appending to a value that is no longer the newest copies its prefix first.
// The zero value is an empty log.
type Log[T any] struct {
	store *logStore[T]
	n     int
}

type logStore[T any] struct {
	mu    sync.Mutex
	items []T
}

// LogOf returns a log holding items.
func LogOf[T any](items ...T) Log[T] {
	return Log[T]{}.Append(items...)
}

// Append returns a log with items added at the end.
func (l Log[T]) Append(items ...T) Log[T] {
	if len(items) == 0 {
		return l
	}
	var prefix []T
	if l.store != nil {
		l.store.mu.Lock()
		if len(l.store.items) == l.n {
			l.store.items = append(l.store.items, items...)
			l.store.mu.Unlock()
			return Log[T]{store: l.store, n: l.n + len(items)}
		}
		prefix = slices.Clone(l.store.items[:l.n])
		l.store.mu.Unlock()
	}
	store := &logStore[T]{items: append(prefix, items...)}
	return Log[T]{store: store, n: len(store.items)}
}

// Len returns the number of items.
func (l Log[T]) Len() int {
	return l.n
}

// Items returns the items in order. The result must not be modified.
func (l Log[T]) Items() []T {
	if l.n == 0 {
		return nil
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.items[:l.n:l.n]
}

// At returns item i; it panics when i is out of range.
func (l Log[T]) At(i int) T {
	if i < 0 || i >= l.n {
		panic("runstate: log index out of range")
	}
	return l.Items()[i]
}

// Last returns the newest item.
func (l Log[T]) Last() (T, bool) {
	if l.n == 0 {
		var zero T
		return zero, false
	}
	return l.At(l.n - 1), true
}

// MarshalJSON encodes the log as an array.
func (l Log[T]) MarshalJSON() ([]byte, error) {
	items := l.Items()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes an array into a fresh log.
func (l *Log[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = LogOf(items...)
	return nil
}
