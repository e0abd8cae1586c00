package vannactl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiClient talks to a running vanna-api.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// httpError is returned for responses with status >= 400.
type httpError struct {
	Status int
	Body   []byte
}

func (e *httpError) Error() string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &payload); err == nil && payload.Detail != "" {
		return fmt.Sprintf("http %d: %s", e.Status, payload.Detail)
	}
	return fmt.Sprintf("http %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{Status: resp.StatusCode, Body: raw}
	}
	return raw, nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, payload, dst any) error {
	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}
