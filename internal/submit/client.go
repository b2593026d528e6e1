package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/activesave/internal/log"
)

// DefaultStatusHeader carries an application-level status next to the HTTP one.
const DefaultStatusHeader = "X-Responded-JSON"

// ErrBadStatusHeader is reported when the status header is not valid JSON or
// its status is not a number.
var ErrBadStatusHeader = errors.New("malformed status header")

// Response is the part of the server reply that decides success.
type Response struct {
	StatusCode int
	// Reported is the status embedded in the status header, nil when the
	// header is absent or carries no status.
	Reported *int
	// HeaderErr is set when the status header could not be decoded.
	HeaderErr error
}

// Succeeded reports whether the server accepted the submission: HTTP 200
// and, when the status header reports a status, that status is 200 too.
func Succeeded(r Response) bool {
	if r.StatusCode != http.StatusOK || r.HeaderErr != nil {
		return false
	}
	return r.Reported == nil || *r.Reported == http.StatusOK
}

// Client sends prepared requests.
type Client struct {
	http         *http.Client
	base         *url.URL
	statusHeader string
	now          func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithStatusHeader overrides DefaultStatusHeader.
func WithStatusHeader(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.statusHeader = name
		}
	}
}

// NewClient creates a Client that resolves relative form actions against baseURL.
// An empty baseURL requires absolute actions.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		statusHeader: DefaultStatusHeader,
		now:          time.Now,
	}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		c.base = base
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve returns the absolute URL a form action points at.
func (c *Client) Resolve(action string) (*url.URL, error) {
	ref, err := url.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("invalid action %q: %w", action, err)
	}
	if c.base != nil {
		ref = c.base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return nil, fmt.Errorf("action %q is relative and no base url is configured", action)
	}
	return ref, nil
}

// Send performs an uncached submission. GET requests carry the payload in
// the query string with a cache-busting "_" parameter; other methods send it
// as a form-encoded body. A non-nil error means no response was received.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	target, err := c.Resolve(req.Action)
	if err != nil {
		return Response{}, err
	}

	var body io.Reader
	if req.Method == http.MethodGet {
		query := target.RawQuery
		if req.Payload != "" {
			query = joinQuery(query, req.Payload)
		}
		target.RawQuery = joinQuery(query, "_="+strconv.FormatInt(c.now().UnixMilli(), 10))
	} else {
		body = strings.NewReader(req.Payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Pragma", "no-cache")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	out := Response{StatusCode: resp.StatusCode}
	if raw := resp.Header.Get(c.statusHeader); raw != "" {
		out.Reported, out.HeaderErr = decodeStatus(raw)
		if out.HeaderErr != nil {
			log.Warn(log.CatSubmit, "ignoring response with bad status header",
				"form", req.FormID, "header", c.statusHeader, "error", out.HeaderErr)
		}
	}
	log.Debug(log.CatSubmit, "received response", "form", req.FormID, "method", req.Method,
		"url", target.Redacted(), "status", resp.StatusCode)
	return out, nil
}

func joinQuery(a, b string) string {
	if a == "" {
		return b
	}
	return a + "&" + b
}

// decodeStatus reads {"status": N}. JSON null or a missing status yields nil.
// The status compares loosely: 200, 200.0 and "200" all read as 200.
func decodeStatus(raw string) (*int, error) {
	var payload *struct {
		Status any `json:"status"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStatusHeader, err)
	}
	if payload == nil || payload.Status == nil {
		return nil, nil
	}

	var n float64
	switch v := payload.Status.(type) {
	case float64:
		n = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: status %q is not a number", ErrBadStatusHeader, v)
		}
		n = f
	default:
		return nil, fmt.Errorf("%w: status %v is not a number", ErrBadStatusHeader, v)
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%w: status %v is not an integer", ErrBadStatusHeader, n)
	}
	status := int(n)
	return &status, nil
}
