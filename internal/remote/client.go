package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is a Store implementation speaking a PostgREST-style protocol:
// tables live under /rest/v1/<table>, equality filters are query parameters
// of the form column=eq.value, and inserts return the created rows when asked
// to with a Prefer header.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

var _ Store = (*Client)(nil)

// NewClient creates a remote store client. Every request is bounded by
// timeout; on expiry the call fails like any other network error.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger.With("component", "remote"),
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Select returns the rows of table matching filters.
func (c *Client) Select(ctx context.Context, table string, filters Filters) ([]map[string]any, error) {
	query := filterQuery(filters)
	query.Set("select", "*")
	body, err := c.do(ctx, http.MethodGet, c.tableURL(table, query), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

// Insert adds a record to table and returns the inserted rows.
func (c *Client) Insert(ctx context.Context, table string, record map[string]any) ([]map[string]any, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for %s: %w", table, err)
	}
	body, err := c.do(ctx, http.MethodPost, c.tableURL(table, url.Values{}), payload, "return=representation")
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

// Update patches the rows of table matching filters.
func (c *Client) Update(ctx context.Context, table string, filters Filters, patch map[string]any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch for %s: %w", table, err)
	}
	_, err = c.do(ctx, http.MethodPatch, c.tableURL(table, filterQuery(filters)), payload, "")
	return err
}

// Delete removes the rows of table matching filters.
func (c *Client) Delete(ctx context.Context, table string, filters Filters) error {
	_, err := c.do(ctx, http.MethodDelete, c.tableURL(table, filterQuery(filters)), nil, "")
	return err
}

// Ping performs a minimal read against the products table.
func (c *Client) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("limit", "1")
	_, err := c.do(ctx, http.MethodGet, c.tableURL(TableProducts, query), nil, "")
	return err
}

// RefreshToken exchanges a refresh token for a new access token and installs
// it on the client. Supports the periodic session refresh task.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) error {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("failed to encode refresh request: %w", err)
	}
	endpoint := c.baseURL + "/auth/v1/token?grant_type=refresh_token"
	body, err := c.do(ctx, http.MethodPost, endpoint, payload, "")
	if err != nil {
		return err
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if resp.AccessToken == "" {
		return &Error{Message: "refresh response carried no access token"}
	}
	c.SetToken(resp.AccessToken)
	return nil
}

func (c *Client) tableURL(table string, query url.Values) string {
	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, prefer string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Surface the bounded timeout as the context error so callers can
		// classify it like any transient failure.
		if reqCtx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, reqCtx.Err())
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

func filterQuery(filters Filters) url.Values {
	query := url.Values{}
	for column, value := range filters {
		query.Set(column, "eq."+value)
	}
	return query
}

func decodeRows(body []byte) ([]map[string]any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}

func decodeError(status int, body []byte) error {
	remoteErr := &Error{Status: status}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		remoteErr.Code = parsed.Code
		remoteErr.Message = parsed.Message
	}
	if remoteErr.Message == "" {
		remoteErr.Message = http.StatusText(status)
	}
	return remoteErr
}
