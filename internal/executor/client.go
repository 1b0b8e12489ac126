// Package executor is the outbound boundary to the agent execution service.
// Foreman composes the prompt and picks the resource tier; the executor runs
// the agent and reports back an opaque result envelope.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InvokeRequest is the payload sent to the execution service.
type InvokeRequest struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	Tier            string `json:"tier"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

// Result is the executor's response envelope. StructuredResult is passed
// through untouched; Foreman never inspects it.
type Result struct {
	Status           string          `json:"status"` // completed, failed
	Output           string          `json:"output"`
	StructuredResult json.RawMessage `json:"structured_result,omitempty"`
	Error            string          `json:"error,omitempty"`
}

func (r *Result) Completed() bool { return r.Status == "completed" }

type Client interface {
	Invoke(ctx context.Context, req InvokeRequest) (*Result, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Invoke(ctx context.Context, ir InvokeRequest) (*Result, error) {
	payload, err := json.Marshal(ir)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/invoke", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("executor POST /api/v1/invoke: %d %s", resp.StatusCode, string(body))
	}
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("executor: decode response: %w", err)
	}
	return &result, nil
}
