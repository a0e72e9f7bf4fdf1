package types

import "time"

// WorkerStatus represents the observed state of a worker agent and its app.
type WorkerStatus string

const (
	// WorkerHealthy means both the worker agent and its application
	// container passed their healthchecks.
	WorkerHealthy WorkerStatus = "healthy"
	// WorkerAppFailed means the worker agent is reachable but the
	// application container is not passing its healthcheck.
	WorkerAppFailed WorkerStatus = "app_failed_worker_running"
	// WorkerFailed means the worker agent itself is unreachable.
	WorkerFailed WorkerStatus = "failed"
	// WorkerUnknown means the worker has not been observed yet.
	WorkerUnknown WorkerStatus = "unknown"
)

// WorkerRecord is the master's last-observed view of one worker.
type WorkerRecord struct {
	Name        string       `json:"name"`
	Host        string       `json:"host"`
	Status      WorkerStatus `json:"status"`
	MemoryUsage float64      `json:"memory_usage"`
	CPUUsage    float64      `json:"cpu_usage"`
	LastSeen    time.Time    `json:"last_seen"`
}

// WorkerStatusResponse is the body a worker agent returns from GET /status.
type WorkerStatusResponse struct {
	WorkerName  string       `json:"worker_name"`
	Status      WorkerStatus `json:"status"`
	MemoryUsage float64      `json:"memory_usage"`
	CPUUsage    float64      `json:"cpu_usage"`
}
