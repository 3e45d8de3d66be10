// Package client is a typed Go client for the riskmap HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/snapshot"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

// APIError is returned when the API responds with a non-2xx status. Fields
// come from the Problem Details body when there is one.
type APIError struct {
	Status  int
	Title   string
	Detail  string
	TraceID string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("riskmap api %d: %s", e.Status, e.Title)
	}
	return fmt.Sprintf("riskmap api %d: %s: %s", e.Status, e.Title, e.Detail)
}

// Client calls one riskmap server.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the admin bearer token.
func WithToken(tok string) Option {
	return func(c *Client) { c.Token = tok }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) raw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var p struct {
			Title   string `json:"title"`
			Detail  string `json:"detail"`
			TraceID string `json:"trace_id"`
		}
		if json.Unmarshal(data, &p) == nil && p.Title != "" {
			apiErr.Title, apiErr.Detail, apiErr.TraceID = p.Title, p.Detail, p.TraceID
		}
		return nil, apiErr
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func selectionQuery(sel resolver.Selection) url.Values {
	q := url.Values{}
	if sel.Jurisdiction != "" {
		q.Set("jurisdiction", string(sel.Jurisdiction))
	}
	if sel.Subcategory != "" {
		q.Set("subcategory", sel.Subcategory)
	}
	return q
}

// Ready reports whether the server has published map data.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/readyz", nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		return false, nil
	}
	return err == nil, err
}

// Jurisdictions calls GET /api/v1/jurisdictions.
func (c *Client) Jurisdictions(ctx context.Context) ([]jurisdiction.Jurisdiction, error) {
	var out struct {
		Jurisdictions []jurisdiction.Jurisdiction `json:"jurisdictions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/jurisdictions", nil, &out)
	return out.Jurisdictions, err
}

// Subcategories calls GET /api/v1/subcategories. The first entry is "all".
func (c *Client) Subcategories(ctx context.Context, j jurisdiction.Code) ([]string, error) {
	var out struct {
		Subcategories []string `json:"subcategories"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/subcategories?"+selectionQuery(resolver.Selection{Jurisdiction: j}).Encode(), nil, &out)
	return out.Subcategories, err
}

// Resolve calls GET /api/v1/resolve.
func (c *Client) Resolve(ctx context.Context, code string, sel resolver.Selection) (resolver.View, error) {
	q := selectionQuery(sel)
	q.Set("code", code)
	var v resolver.View
	err := c.do(ctx, http.MethodGet, "/api/v1/resolve?"+q.Encode(), nil, &v)
	return v, err
}

// Style calls GET /api/v1/style.
func (c *Client) Style(ctx context.Context, code string, sel resolver.Selection, profile string) (resolver.View, style.Style, error) {
	q := selectionQuery(sel)
	q.Set("code", code)
	if profile != "" {
		q.Set("profile", profile)
	}
	var out struct {
		View  resolver.View `json:"view"`
		Style style.Style   `json:"style"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/style?"+q.Encode(), nil, &out)
	return out.View, out.Style, err
}

// Normalize calls POST /api/v1/normalize.
func (c *Client) Normalize(ctx context.Context, props map[string]any) (code, name string, err error) {
	var out struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/normalize", map[string]any{"properties": props}, &out)
	return out.Code, out.Name, err
}

// Map calls GET /api/v1/map and returns the styled GeoJSON.
func (c *Client) Map(ctx context.Context, sel resolver.Selection, profile string) ([]byte, error) {
	q := selectionQuery(sel)
	if profile != "" {
		q.Set("profile", profile)
	}
	return c.raw(ctx, http.MethodGet, "/api/v1/map?"+q.Encode(), nil)
}

// Legend calls GET /api/v1/legend.
func (c *Client) Legend(ctx context.Context, profile string) ([]style.LegendEntry, error) {
	path := "/api/v1/legend"
	if profile != "" {
		path += "?profile=" + url.QueryEscape(profile)
	}
	var out struct {
		Entries []style.LegendEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

// Login exchanges admin credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, user, password string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/token", map[string]string{"username": user, "password": password}, &out)
	if err != nil {
		return err
	}
	c.Token = out.AccessToken
	return nil
}

// ReloadResult is the outcome of an admin reload.
type ReloadResult struct {
	Hash      string   `json:"hash"`
	Version   string   `json:"version"`
	Records   int      `json:"records"`
	Snapshot  string   `json:"snapshot"`
	Warnings  []string `json:"warnings"`
	Unmatched []string `json:"unmatched"`
}

// Reload calls POST /api/v1/admin/reload.
func (c *Client) Reload(ctx context.Context) (*ReloadResult, error) {
	var out ReloadResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/reload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshots calls GET /api/v1/admin/snapshots.
func (c *Client) Snapshots(ctx context.Context, limit int) ([]snapshot.Snapshot, error) {
	path := "/api/v1/admin/snapshots"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Snapshots []snapshot.Snapshot `json:"snapshots"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Snapshots, err
}
