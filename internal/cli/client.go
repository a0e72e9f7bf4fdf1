package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avoronin/fleetling/internal/types"
)

// Client is a thin HTTP client for the master's orchestrator API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new orchestrator API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListWorkers fetches the registry snapshot from GET /workers.
func (c *Client) ListWorkers() (map[string]types.WorkerRecord, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/workers")
	if err != nil {
		return nil, fmt.Errorf("get workers: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var workers map[string]types.WorkerRecord
	if err := json.NewDecoder(resp.Body).Decode(&workers); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return workers, nil
}

// RefreshWorkers forces a fleet-wide status refresh via PUT /workers.
func (c *Client) RefreshWorkers() error {
	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/workers", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put workers: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// HealthyHosts fetches GET /healthy_hosts.
func (c *Client) HealthyHosts() ([]string, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/healthy_hosts")
	if err != nil {
		return nil, fmt.Errorf("get healthy hosts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var hosts []string
	if err := json.NewDecoder(resp.Body).Decode(&hosts); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return hosts, nil
}

// Settings fetches GET /settings as raw JSON for display.
func (c *Client) Settings() (map[string]interface{}, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/settings")
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var settings map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return settings, nil
}
