package agent

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/avoronin/fleetling/internal/types"
	"github.com/avoronin/fleetling/internal/worker/docker"
)

// AppRunner owns the single application container on this VM: it builds
// the image from the app's git repo, runs the container with the app port
// published, and reports health and resource usage.
type AppRunner struct {
	docker     *docker.Client
	httpClient *http.Client

	image       string
	appPort     int
	healthcheck string
	dockerfile  string
	gitRepo     string

	mu          sync.Mutex
	containerID string
}

// NewAppRunner creates an app runner. The container is named after the
// app image so a replaced runner can find containers left by its
// predecessor.
func NewAppRunner(
	dockerClient *docker.Client, httpClient *http.Client,
	image string, appPort int, healthcheck, dockerfile, gitRepo string,
) *AppRunner {
	return &AppRunner{
		docker:      dockerClient,
		httpClient:  httpClient,
		image:       image,
		appPort:     appPort,
		healthcheck: healthcheck,
		dockerfile:  dockerfile,
		gitRepo:     gitRepo,
	}
}

// Start builds the application image from its git repo and runs it,
// replacing any container left over from a previous run.
func (r *AppRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Println("starting the app")

	existing, err := r.docker.FindContainer(ctx, r.image, false)
	if err != nil {
		return err
	}
	if existing != "" {
		log.Printf("container named %s already exists, stopping and removing", r.image)
		if err := r.docker.StopContainer(ctx, existing); err != nil {
			log.Printf("failed to stop existing container: %v", err)
		}
		if err := r.docker.RemoveContainer(ctx, existing); err != nil {
			return err
		}
	}

	if err := r.buildImage(ctx); err != nil {
		return err
	}

	containerID, err := r.docker.RunContainer(ctx, r.image, r.image, r.appPort)
	if err != nil {
		return err
	}
	r.containerID = containerID

	log.Printf("app container %s started", containerID)
	return nil
}

// buildImage clones the app repo into a temp directory and builds the
// configured dockerfile against it.
func (r *AppRunner) buildImage(ctx context.Context) error {
	log.Printf("building the app image from %s", r.gitRepo)

	tempDir, err := os.MkdirTemp("", "fleetling-app-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth=1", r.gitRepo, tempDir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %w\n%s", err, output)
	}

	contextDir := filepath.Dir(filepath.Join(tempDir, r.dockerfile))
	dockerfile := filepath.Base(r.dockerfile)
	log.Printf("build context is %s, dockerfile is %s", contextDir, dockerfile)

	return r.docker.BuildImage(ctx, contextDir, dockerfile, r.image)
}

// Stop stops the application container if one is running.
func (r *AppRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Println("stopping the app container")

	existing, err := r.docker.FindContainer(ctx, r.image, false)
	if err != nil {
		return err
	}
	if existing == "" {
		return nil
	}

	if err := r.docker.StopContainer(ctx, existing); err != nil {
		return err
	}
	r.containerID = ""

	log.Printf("container named %s stopped", r.image)
	return nil
}

// Status reports whether the application is serving. With a healthcheck
// configured, a 200 from it wins and a non-200 loses; only a transport
// failure falls back to checking that the container is running.
func (r *AppRunner) Status(ctx context.Context) types.WorkerStatus {
	if r.healthcheck != "" {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		url := fmt.Sprintf("http://localhost:%d%s", r.appPort, r.healthcheck)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := r.httpClient.Do(req)
			if err == nil {
				defer func() { _ = resp.Body.Close() }()
				if resp.StatusCode == http.StatusOK {
					return types.WorkerHealthy
				}
				return types.WorkerAppFailed
			}
			log.Printf("app healthcheck unreachable, falling back to container check: %v", err)
		}
	}

	running, err := r.docker.FindContainer(ctx, r.image, true)
	if err != nil {
		log.Printf("failed to check for running container: %v", err)
		return types.WorkerAppFailed
	}
	if running != "" {
		return types.WorkerHealthy
	}
	return types.WorkerAppFailed
}

// MemoryUsage returns the container's memory usage as a percentage of its
// limit, or 0 when no container is tracked.
func (r *AppRunner) MemoryUsage(ctx context.Context) float64 {
	r.mu.Lock()
	containerID := r.containerID
	r.mu.Unlock()

	if containerID == "" {
		return 0
	}

	stats, err := r.docker.Stats(ctx, containerID)
	if err != nil {
		log.Printf("failed to read memory stats: %v", err)
		return 0
	}

	return memoryPercent(stats)
}

// CPUUsage returns the container's CPU usage as a percentage of total
// system CPU scaled by core count, or 0 when no container is tracked.
func (r *AppRunner) CPUUsage(ctx context.Context) float64 {
	r.mu.Lock()
	containerID := r.containerID
	r.mu.Unlock()

	if containerID == "" {
		return 0
	}

	stats, err := r.docker.Stats(ctx, containerID)
	if err != nil {
		log.Printf("failed to read cpu stats: %v", err)
		return 0
	}

	return cpuPercent(stats)
}
