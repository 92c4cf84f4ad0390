// Package history loads the chat snapshot from the REST history endpoint.
package history

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/chat"
)

// DefaultPath is the history endpoint path on the chat server.
const DefaultPath = "/messages"

// maxBody caps the snapshot size read from the server.
const maxBody = 16 << 20

// FetchError reports a failed snapshot load: the request could not be made,
// the server answered with a non-2xx status, or the body did not parse.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("history: fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("history: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Loader performs one GET against the history endpoint per Fetch call.
type Loader struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// LoaderOpts holds parameters for creating a Loader.
type LoaderOpts struct {
	ServerURL string        // e.g. "http://localhost:8080"
	Path      string        // defaults to DefaultPath
	Timeout   time.Duration // 0 means no timeout beyond ctx
	Client    *http.Client  // defaults to http.DefaultClient
}

// NewLoader creates a Loader.
func NewLoader(opts LoaderOpts) (*Loader, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("history: server url is required")
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		url:     strings.TrimRight(opts.ServerURL, "/") + path,
		client:  client,
		timeout: opts.Timeout,
	}, nil
}

// URL returns the endpoint the Loader fetches from.
func (l *Loader) URL() string { return l.url }

// Fetch retrieves the snapshot in chronological order. It never retries.
func (l *Loader) Fetch(ctx context.Context) ([]chat.Message, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, &FetchError{URL: l.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: l.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &FetchError{URL: l.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:        l.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	msgs, err := chat.DecodeList(body)
	if err != nil {
		return nil, &FetchError{URL: l.url, StatusCode: resp.StatusCode, Err: err}
	}
	return msgs, nil
}
