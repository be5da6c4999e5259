// Package fetcher performs a single conditional-GET HTTP request per feed
// poll and classifies the result into the outcome taxonomy the poll state
// machine switches on. There are no retries here: a poll either succeeds,
// comes back unmodified, or terminates with a specific error; retrying is
// the scheduler's next run, not this package's job.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Kind classifies the terminal result of a single fetch attempt.
type Kind int

const (
	// Ok means the server returned 200 with a readable body.
	Ok Kind = iota
	// NotModified means the server returned 304.
	NotModified
	// Http means the server returned a status other than 200, 304 or 404.
	Http
	// Timeout means the request's deadline was exceeded.
	Timeout
	// NotFound means the server returned 404.
	NotFound
	// TransportError means any other transport-layer failure.
	TransportError
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case NotModified:
		return "NotModified"
	case Http:
		return "Http"
	case Timeout:
		return "Timeout"
	case NotFound:
		return "NotFound"
	case TransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Conditions carries the conditional-GET headers from the last successful
// fetch of this feed, if any.
type Conditions struct {
	ETag         string
	LastModified string
}

// Outcome is the terminal classification of a single fetch attempt.
type Outcome struct {
	Kind         Kind
	Status       string
	Headers      http.Header
	Body         []byte
	Etag         string
	LastModified string
	Cause        error
}

// Client performs conditional GET requests against feed URLs. A single
// instance is shared across all polls in a scheduler run.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a Client. The per-request deadline is set by Fetch's
// timeout argument, not by this client's own Timeout field, so the same
// Client can serve polls configured with different request_timeout values.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		userAgent:  "feedspool/1.0",
	}
}

// Fetch performs a single GET against url, carrying If-None-Match and
// If-Modified-Since from cond when non-empty, bounded by timeout.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration, cond *Conditions) *Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return &Outcome{Kind: TransportError, Cause: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)

	if cond != nil {
		if cond.ETag != "" {
			req.Header.Set("If-None-Match", cond.ETag)
		}
		if cond.LastModified != "" {
			req.Header.Set("If-Modified-Since", cond.LastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return &Outcome{Kind: Timeout, Cause: err}
		}
		return &Outcome{Kind: TransportError, Cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &Outcome{
			Kind:         NotModified,
			Status:       fmt.Sprintf("%d", resp.StatusCode),
			Headers:      resp.Header,
			Etag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
	case http.StatusNotFound:
		return &Outcome{Kind: NotFound, Status: fmt.Sprintf("%d", resp.StatusCode), Cause: fmt.Errorf("status 404")}
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &Outcome{Kind: TransportError, Cause: fmt.Errorf("reading body: %w", readErr)}
		}
		return &Outcome{
			Kind:         Ok,
			Status:       fmt.Sprintf("%d", resp.StatusCode),
			Headers:      resp.Header,
			Body:         body,
			Etag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
	default:
		body, _ := io.ReadAll(resp.Body) // best effort
		return &Outcome{
			Kind:    Http,
			Status:  fmt.Sprintf("%d", resp.StatusCode),
			Headers: resp.Header,
			Body:    body,
		}
	}
}
