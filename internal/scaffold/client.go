// Package scaffold talks to the file-template and backup service. Foreman
// only brokers deploy/backup/restore requests for admin callers.
package scaffold

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type DeployResult struct {
	TemplateID string   `json:"template_id"`
	Target     string   `json:"target"`
	Files      []string `json:"files"`
}

type BackupResult struct {
	BackupID  string    `json:"backup_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

type Client interface {
	Deploy(ctx context.Context, templateID, target string) (*DeployResult, error)
	Backup(ctx context.Context, path string) (*BackupResult, error)
	Restore(ctx context.Context, backupID string) error
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("scaffold %s %s: %d %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

func (c *HTTPClient) Deploy(ctx context.Context, templateID, target string) (*DeployResult, error) {
	data, err := c.doReq(ctx, "POST", "/api/v1/deploy", map[string]string{
		"template_id": templateID,
		"target":      target,
	})
	if err != nil {
		return nil, err
	}
	var res DeployResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Backup(ctx context.Context, path string) (*BackupResult, error) {
	data, err := c.doReq(ctx, "POST", "/api/v1/backup", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	var res BackupResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Restore(ctx context.Context, backupID string) error {
	_, err := c.doReq(ctx, "POST", "/api/v1/restore/"+backupID, nil)
	return err
}
