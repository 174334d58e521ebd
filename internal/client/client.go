package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"runwatch/internal/stream"
)

// HTTPDoer abstracts HTTP clients used by the run server client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// EnvToken reads the bearer token from an environment variable on every call.
type EnvToken string

// Token returns the variable's current value.
func (t EnvToken) Token(ctx context.Context) (string, error) {
	value := strings.TrimSpace(os.Getenv(string(t)))
	if value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoToken, string(t))
	}
	return value, nil
}

// ErrNoToken reports a missing bearer token.
var ErrNoToken = errors.New("auth token is required")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// Error includes the response body when the server sent one.
func (e *StatusError) Error() string {
	message := fmt.Sprintf("%s %s: http %d", e.Method, e.URL, e.Code)
	if e.Body != "" {
		message += ": " + e.Body
	}
	return message
}

// Client talks to the run server.
type Client struct {
	BaseURL string
	Tokens  TokenProvider
	HTTP    HTTPDoer
}

// New constructs a client for baseURL.
func New(baseURL string, tokens TokenProvider, doer HTTPDoer) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		HTTP:    doer,
	}, nil
}

// Source returns a stream source that POSTs body to path and yields the
// event-stream response body. A nil body sends an empty JSON object.
func (c *Client) Source(path string, body any) stream.Source {
	return stream.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		var payload []byte
		if body == nil {
			payload = []byte("{}")
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			payload = encoded
		}
		req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(req, resp); err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

// FetchRunState reads the persisted state of a run.
func (c *Client) FetchRunState(ctx context.Context, path string) (RunState, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return RunState{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return RunState{}, err
	}
	if err := checkStatus(req, resp); err != nil {
		return RunState{}, err
	}
	defer resp.Body.Close()
	var state RunState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return RunState{}, fmt.Errorf("decode run state: %w", err)
	}
	return state, nil
}

// CancelRun asks the server to stop a run.
func (c *Client) CancelRun(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	if err := checkStatus(req, resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Reconciler returns a stream.Reconciler that reads the run state at path.
func (c *Client) Reconciler(path string) stream.Reconciler {
	return reconciler{client: c, path: path}
}

// newRequest builds an authenticated request for path.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// checkStatus closes the body and returns a StatusError for non-2xx responses.
func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

// ExpandPath substitutes the run id into a path template.
func ExpandPath(template, runID string) string {
	return strings.ReplaceAll(template, "{id}", runID)
}
