package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// Client talks to the sync backend over HTTPS with JSON bodies and a bearer token.
type Client struct {
	baseURL    string
	token      string
	deviceID   string
	probePath  string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithDeviceID tags pushed batches with the originating device.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithProbePath sets the path used by Ping.
func WithProbePath(path string) Option {
	return func(c *Client) { c.probePath = path }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		probePath:  "/health",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// Ping checks that the backend answers. Any 2xx is success.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, c.probePath, nil, nil, nil)
}

// Push sends a batch of same-kind mutations and returns the per-item verdicts.
// A seq missing from the response comes back refused with Retry set.
func (c *Client) Push(ctx context.Context, kind string, items []PushItem) ([]ItemResult, error) {
	if err := checkToken(c.token, c.now()); err != nil {
		return nil, err
	}
	req := pushRequest{DeviceID: c.deviceID, Kind: kind, Mutations: items}
	var resp pushResponse
	if err := c.do(ctx, "push "+kind, http.MethodPost, "/v1/push", nil, req, &resp); err != nil {
		return nil, err
	}

	bySeq := make(map[int64]ItemResult, len(resp.Results))
	for _, r := range resp.Results {
		bySeq[r.Seq] = r
	}
	results := make([]ItemResult, 0, len(items))
	for _, it := range items {
		r, ok := bySeq[it.Seq]
		if !ok {
			r = ItemResult{Seq: it.Seq, Retry: true, Error: "no result from remote"}
		}
		results = append(results, r)
	}
	return results, nil
}

// Pull fetches records of kind changed after since.
func (c *Client) Pull(ctx context.Context, kind EntityKind, since int64, limit int) (*Page, error) {
	if err := checkToken(c.token, c.now()); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("kind", string(kind))
	q.Set("since", strconv.FormatInt(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page Page
	if err := c.do(ctx, "pull "+string(kind), http.MethodGet, "/v1/pull", q, nil, &page); err != nil {
		return nil, err
	}
	if page.Watermark < since {
		page.Watermark = since
	}
	return &page, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %w", op, ErrTransient, err)
	}
	return nil
}
