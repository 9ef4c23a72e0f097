// Package sentiq is a Go client for the sentiq HTTP API.
package sentiq

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
	"strings"
	"time"

	"sentiq/internal/engine"
	"sentiq/internal/httpapi"
)

// Overrides adjusts the server's default backtest settings for one run.
type Overrides = engine.Overrides

// Run is a persisted backtest run.
type Run = httpapi.RunJSON

// Signal is a stored trading signal.
type Signal = httpapi.SignalJSON

// BacktestResult is the response of RunBacktest.
type BacktestResult = httpapi.BacktestResponse

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("sentiq: not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentiq: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for the sentiq-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new sentiq API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// RunBacktest runs a backtest for symbol over its stored features.
func (c *Client) RunBacktest(ctx context.Context, symbol string, ov Overrides) (*BacktestResult, error) {
	body, err := json.Marshal(ov)
	if err != nil {
		return nil, err
	}
	var out BacktestResult
	if err := c.do(ctx, http.MethodPost, "/api/backtests/"+url.PathEscape(symbol), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns recent runs, newest first. An empty symbol lists all
// symbols; limit <= 0 uses the server default.
func (c *Client) ListRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var out Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSignals returns the latest signals for symbol.
func (c *Client) ListSignals(ctx context.Context, symbol string, limit int) ([]Signal, error) {
	path := "/api/signals/" + url.PathEscape(symbol)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Signal
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
