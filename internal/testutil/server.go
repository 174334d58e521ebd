package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest captures what a test server received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// ServerInstance represents a running HTTP test server.
type ServerInstance struct {
	BaseURL string
	Close   func()

	mu       sync.Mutex
	requests []RecordedRequest
}

// Requests returns the requests received so far.
func (s *ServerInstance) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// StartServer launches an HTTP test server that records every request before
// passing it to handler.
func StartServer(t *testing.T, handler http.Handler) *ServerInstance {
	t.Helper()
	instance := &ServerInstance{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		instance.mu.Lock()
		instance.requests = append(instance.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		instance.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	instance.BaseURL = server.URL
	instance.Close = server.Close
	t.Cleanup(server.Close)
	return instance
}

// SSEHandler streams each payload as its own flushed data frame.
func SSEHandler(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, ": connected\n\n")
		for _, payload := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
