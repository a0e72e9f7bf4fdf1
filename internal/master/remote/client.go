package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/types"
)

// commandTimeout bounds each remote SSH/SCP invocation. The deploy script
// clones the worker repo and builds its image on the target VM, so this is
// generous.
const commandTimeout = 120 * time.Second

// StatusError reports a worker agent answering with a non-200 status.
// The caller maps it to app_failed_worker_running rather than failed.
type StatusError struct {
	Host string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker agent at %s returned status %d", e.Host, e.Code)
}

// Client talks to worker agents over HTTP and to their VMs over SSH.
// It holds no state beyond its configuration and the shared HTTP client.
type Client struct {
	httpClient *http.Client
	sshUser    string
	workerPort int
	app        config.AppInfo
	worker     config.WorkerInfo
}

// NewClient creates a worker agent client. The HTTP client is shared across
// all callers and constructed once by the process bootstrap.
func NewClient(httpClient *http.Client, sshUser string, app config.AppInfo, worker config.WorkerInfo) *Client {
	return &Client{
		httpClient: httpClient,
		sshUser:    sshUser,
		workerPort: worker.Port,
		app:        app,
		worker:     worker,
	}
}

// Status fetches GET /status from the worker agent on host. A non-200
// answer is surfaced as *StatusError; transport failures come back as-is.
func (c *Client) Status(ctx context.Context, host string) (types.WorkerStatusResponse, error) {
	url := fmt.Sprintf("http://%s:%d/status", host, c.workerPort)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.WorkerStatusResponse{}, fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.WorkerStatusResponse{}, fmt.Errorf("fetch worker status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return types.WorkerStatusResponse{}, &StatusError{Host: host, Code: resp.StatusCode}
	}

	var status types.WorkerStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return types.WorkerStatusResponse{}, fmt.Errorf("decode worker status: %w", err)
	}

	return status, nil
}

// StartApp asks the worker agent on host to start its application container.
func (c *Client) StartApp(ctx context.Context, host string) error {
	return c.post(ctx, host, "/start_app")
}

// StopApp asks the worker agent on host to stop its application container.
func (c *Client) StopApp(ctx context.Context, host string) error {
	return c.post(ctx, host, "/stop_app")
}

func (c *Client) post(ctx context.Context, host, path string) error {
	url := fmt.Sprintf("http://%s:%d%s", host, c.workerPort, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Host: host, Code: resp.StatusCode}
	}

	return nil
}

// Deploy copies deploy_worker.sh to the VM and runs it there, leaving a
// worker agent container named workerName listening on the worker port.
// Each shell step fails the whole operation on non-zero exit.
func (c *Client) Deploy(ctx context.Context, host, workerName string) error {
	credentials := fmt.Sprintf("%s@%s", c.sshUser, host)

	commands := [][]string{
		{"scp", "./deploy_worker.sh", credentials + ":./deploy_worker.sh"},
		{"ssh", credentials, "chmod", "+x", "./deploy_worker.sh"},
		{
			"ssh", credentials, "./deploy_worker.sh",
			c.worker.GitRepo,
			workerName,
			fmt.Sprintf("%d", c.workerPort),
			c.app.Image,
			c.app.GitRepo,
			fmt.Sprintf("%d", c.app.AppPort),
			c.app.Healthcheck,
			c.app.Dockerfile,
			c.worker.Dockerfile,
		},
	}

	for _, args := range commands {
		if err := runCommand(ctx, args); err != nil {
			return err
		}
	}

	return nil
}

// RemoveContainer force-removes the worker agent container on host.
func (c *Client) RemoveContainer(ctx context.Context, host, workerName string) error {
	credentials := fmt.Sprintf("%s@%s", c.sshUser, host)
	return runCommand(ctx, []string{"ssh", credentials, "docker", "rm", "-f", workerName})
}

// runCommand executes one remote command, capturing stderr so a failure
// carries the remote diagnostic.
func runCommand(ctx context.Context, args []string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("command %v failed: %w: %s", args, err, msg)
	}

	return nil
}
