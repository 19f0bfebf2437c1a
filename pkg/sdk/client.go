package pricehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dondelocompro/pricehub/internal/domain"
)

// Domain types re-exported so callers need only this package.
type (
	Event     = domain.Event
	EventKind = domain.EventKind
	Item      = domain.Item
	Search    = domain.Search
	Summary   = domain.Summary
	Vendor    = domain.Vendor
)

// Event kinds re-exported from the domain layer.
const (
	EventSearchStarted   = domain.EventSearchStarted
	EventVendorStarted   = domain.EventVendorStarted
	EventProductFound    = domain.EventProductFound
	EventVendorCompleted = domain.EventVendorCompleted
	EventVendorError     = domain.EventVendorError
	EventSearchCompleted = domain.EventSearchCompleted
	EventSearchFailed    = domain.EventSearchFailed
)

// ErrSearchNotFound signals an unknown or expired search id.
// Use errors.Is() to check.
var ErrSearchNotFound = domain.ErrSearchNotFound

// Client talks to a pricehub API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The client used for
// StreamEvents must not carry a global timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartResult is the server's acknowledgement of a new search.
type StartResult struct {
	SearchID  string `json:"search_id"`
	Status    string `json:"status"`
	EventsURL string `json:"events_url"`
	Message   string `json:"message"`
}

// StartSearch dispatches a query across the active vendors and returns
// immediately. maxResults 0 leaves the server default in place.
func (c *Client) StartSearch(ctx context.Context, query string, maxResults int) (StartResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("pricehub: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return StartResult{}, fmt.Errorf("pricehub: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out StartResult
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return StartResult{}, err
	}
	return out, nil
}

// GetSearch returns a point-in-time snapshot of the search.
func (c *Client) GetSearch(ctx context.Context, id string) (Search, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(id), nil)
	if err != nil {
		return Search{}, fmt.Errorf("pricehub: build request: %w", err)
	}

	var out Search
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return Search{}, err
	}
	return out, nil
}

// CancelSearch requests cancellation of a running search.
func (c *Client) CancelSearch(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.searchURL(id), nil)
	if err != nil {
		return fmt.Errorf("pricehub: build request: %w", err)
	}
	return c.do(req, http.StatusAccepted, nil)
}

// Vendors lists every configured vendor.
func (c *Client) Vendors(ctx context.Context) ([]Vendor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/vendors", nil)
	if err != nil {
		return nil, fmt.Errorf("pricehub: build request: %w", err)
	}

	var out struct {
		Vendors []Vendor `json:"vendors"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Vendors, nil
}

// Health checks the server. A degraded server returns an error.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("pricehub: build request: %w", err)
	}
	return c.do(req, http.StatusOK, nil)
}

func (c *Client) searchURL(id string) string {
	return c.baseURL + "/api/search/" + url.PathEscape(id)
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pricehub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pricehub: decode response: %w", err)
	}
	return nil
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pricehub: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is maps well-known API codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	return target == ErrSearchNotFound && e.Code == "search_not_found"
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	if parsed.Message == "" {
		parsed.Message = strings.TrimSpace(string(body))
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       parsed.Code,
		Message:    parsed.Message,
	}
}

// waitInterval is the poll period of WaitForCompletion.
const waitInterval = 200 * time.Millisecond

// WaitForCompletion polls until the search reaches a terminal status.
// StreamEvents is the better tool; this exists for callers that only
// want the final snapshot.
func (c *Client) WaitForCompletion(ctx context.Context, id string) (Search, error) {
	ticker := time.NewTicker(waitInterval)
	defer ticker.Stop()

	for {
		snap, err := c.GetSearch(ctx, id)
		if err != nil {
			return Search{}, err
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return Search{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
