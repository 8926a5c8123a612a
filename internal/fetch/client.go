// Package fetch talks to the Hacker News API.
//
// Every call is normalised at this boundary: a failed request never returns
// an error to the caller, it is logged and reported as absent.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public HN API.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// Kind classifies why a fetch came back empty.
type Kind string

const (
	KindHTTP       Kind = "http"       // Non-2xx response
	KindTimeout    Kind = "timeout"    // Request ran past the client timeout
	KindConnection Kind = "connection" // Dial, reset, refused...
	KindDecode     Kind = "decode"     // Body wasn't JSON
	KindEmpty      Kind = "empty"      // Body was JSON null, which HN sends for missing items
	KindOther      Kind = "other"
)

// Error describes a single failed fetch.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s: %s: status %d", e.Kind, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type (
	// Client fetches from the HN API.
	Client struct {
		http    *http.Client
		baseURL string

		// Caps in-flight item requests per batch; zero means every request starts at once.
		maxConcurrent int
	}

	Config struct {
		BaseURL       string
		Timeout       time.Duration
		MaxConcurrent int
	}
)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:       cfg.BaseURL,
		maxConcurrent: cfg.MaxConcurrent,
	}
}

// Fetch issues one GET and returns the decoded JSON body.
//
// Any failure is logged with its kind and reported as absent (false).
func (c *Client) Fetch(ctx context.Context, url string) (json.RawMessage, bool) {
	body, status, err := c.get(ctx, url)
	if err != nil {
		var fErr *Error
		if !errors.As(err, &fErr) {
			fErr = &Error{Kind: KindOther, URL: url, Err: err}
		}
		slog.WarnContext(ctx, "fetch failed",
			"url", url,
			"kind", fErr.Kind,
			"status", fErr.Status,
			"error", fErr.Err,
		)
		return nil, false
	}

	slog.DebugContext(ctx, "fetched", "url", url, "status", status)
	return body, true
}

// Returns the decoded body along with the response status.
func (c *Client) get(ctx context.Context, url string) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &Error{Kind: KindOther, URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &Error{Kind: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &Error{Kind: KindHTTP, URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, &Error{Kind: classify(err), URL: url, Status: resp.StatusCode, Err: fmt.Errorf("error decoding body: %w", err)}
	}
	if string(body) == "null" {
		return nil, resp.StatusCode, &Error{Kind: KindEmpty, URL: url, Status: resp.StatusCode, Err: errors.New("null body")}
	}

	return body, resp.StatusCode, nil
}

// Sorts a transport error into a kind.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindDecode
	}

	return KindOther
}

func (c *Client) itemURL(id int64) string {
	return fmt.Sprintf("%s/item/%d.json", c.baseURL, id)
}

func (c *Client) userURL(id string) string {
	return fmt.Sprintf("%s/user/%s.json", c.baseURL, url.PathEscape(id))
}
