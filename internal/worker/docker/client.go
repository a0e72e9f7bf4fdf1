package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Client wraps Docker SDK functionality for managing the single application
// container on this VM.
type Client struct {
	cli *client.Client
}

// NewClient creates a new Docker client from the environment.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Close closes the Docker client connection.
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}

// FindContainer returns the ID of a container with the given name, or ""
// if none exists. Set onlyRunning to skip stopped containers.
func (c *Client) FindContainer(ctx context.Context, name string, onlyRunning bool) (string, error) {
	containers, err := c.cli.ContainerList(
		ctx, container.ListOptions{
			All:     !onlyRunning,
			Filters: filters.NewArgs(filters.Arg("name", name)),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		return "", nil
	}
	return containers[0].ID, nil
}

// BuildImage builds an image from a local build context directory.
func (c *Client) BuildImage(ctx context.Context, contextDir, dockerfile, tag string) error {
	buildContext, err := tarDirectory(contextDir)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	resp, err := c.cli.ImageBuild(
		ctx, buildContext, types.ImageBuildOptions{
			Tags:       []string{tag},
			Dockerfile: dockerfile,
			Remove:     true,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain build output so the build completes before returning
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("error reading build output: %w", err)
	}

	return nil
}

// RunContainer creates and starts a detached container with the given name,
// publishing port on the host.
func (c *Client) RunContainer(ctx context.Context, imageName, containerName string, port int) (string, error) {
	containerPort := nat.Port(fmt.Sprintf("%d/tcp", port))

	config := &container.Config{
		Image:        imageName,
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", port)},
			},
		},
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", resp.ID, err)
	}

	return resp.ID, nil
}

// StopContainer stops a container and waits for it to exit.
func (c *Client) StopContainer(ctx context.Context, containerID string) error {
	timeout := 10 // seconds
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	waitCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to wait for container %s: %w", containerID, err)
		}
	case <-waitCh:
	}

	return nil
}

// RemoveContainer removes a container by ID.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// Stats performs a one-shot stats read for a container.
func (c *Client) Stats(ctx context.Context, containerID string) (container.StatsResponse, error) {
	resp, err := c.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return container.StatsResponse{}, fmt.Errorf("failed to read stats for %s: %w", containerID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return container.StatsResponse{}, fmt.Errorf("failed to decode stats for %s: %w", containerID, err)
	}

	return stats, nil
}
