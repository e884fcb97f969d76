// Package main provides the HTTP client for communicating with opsdeckd.
//
// The client talks plain HTTP to the daemon's loopback listener. All
// responses are JSON-encoded; API errors arrive as a status >= 400 with
// an {"error": ...} body.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAddr = "127.0.0.1:8960"

const maxJSONOutputBytes = 4 << 20 // 4MB maximum JSON response size

// apiClient is an HTTP client for the opsdeckd control API.
type apiClient struct {
	addr       string
	httpClient *http.Client
	timeout    time.Duration
}

// apiError represents an error response from the opsdeckd API.
type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func newAPIClient(addr string, timeout time.Duration) *apiClient {
	if addr == "" {
		addr = defaultAddr
	}
	return &apiClient{
		addr:       addr,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// doJSON sends an HTTP request with a JSON payload and returns the JSON
// response body.
func (c *apiClient) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s via %s: %w", method, path, c.addr, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONOutputBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	data, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, dest any) error {
	data, err := c.doJSON(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if dest == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func parseAPIError(status int, data []byte) error {
	if len(data) > 0 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			if apiErr.Details != "" {
				return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Details)
			}
			return errors.New(apiErr.Error)
		}
	}
	return fmt.Errorf("request failed with status %d", status)
}

func (c *apiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c == nil || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// prettyPrintJSON formats JSON data with indentation and writes it out.
func prettyPrintJSON(w io.Writer, data []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
