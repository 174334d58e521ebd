package testutil

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// ScriptedSource is a stream source whose body is fed chunk by chunk by the
// test. Each Read returns at most one sent chunk, so chunk boundaries reach
// the reader exactly as sent.
type ScriptedSource struct {
	// IgnoreClose keeps Read delivering chunks after the body is closed,
	// which lets a test push data into a reader that was already superseded.
	IgnoreClose bool
	// OpenErr is returned from Open when set.
	OpenErr error

	chunks    chan []byte
	closed    chan struct{}
	opened    chan struct{}
	closeOnce sync.Once
	openOnce  sync.Once
	endOnce   sync.Once
	endErr    error
	opens     atomic.Int32
}

// NewScriptedSource constructs an empty scripted source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		chunks: make(chan []byte, 256),
		closed: make(chan struct{}),
		opened: make(chan struct{}),
	}
}

// ChunkSource returns a source that yields chunks and then ends cleanly.
func ChunkSource(chunks ...string) *ScriptedSource {
	src := NewScriptedSource()
	for _, chunk := range chunks {
		src.Send(chunk)
	}
	src.End(nil)
	return src
}

// Open returns the scripted body.
func (s *ScriptedSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.opens.Add(1)
	s.openOnce.Do(func() { close(s.opened) })
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	return &scriptedBody{src: s}, nil
}

// Send queues one chunk for the reader.
func (s *ScriptedSource) Send(chunk string) {
	s.chunks <- []byte(chunk)
}

// End finishes the body; a nil err ends with io.EOF.
func (s *ScriptedSource) End(err error) {
	s.endOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		s.endErr = err
		close(s.chunks)
	})
}

// Opened is closed on the first call to Open.
func (s *ScriptedSource) Opened() <-chan struct{} {
	return s.opened
}

// Opens reports how many times Open was called.
func (s *ScriptedSource) Opens() int {
	return int(s.opens.Load())
}

// Closed reports whether the body has been closed.
func (s *ScriptedSource) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type scriptedBody struct {
	src     *ScriptedSource
	pending []byte
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.pending) == 0 {
		closed := b.src.closed
		if b.src.IgnoreClose {
			closed = nil
		}
		select {
		case chunk, ok := <-b.src.chunks:
			if !ok {
				return 0, b.src.endErr
			}
			b.pending = chunk
		case <-closed:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *scriptedBody) Close() error {
	b.src.closeOnce.Do(func() { close(b.src.closed) })
	return nil
}
