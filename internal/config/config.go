package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// AppInfo describes the application the fleet runs.
type AppInfo struct {
	Image       string `json:"image"`
	AppPort     int    `json:"app_port"`
	Healthcheck string `json:"healthcheck"`
	GitRepo     string `json:"git_repo"`
	Dockerfile  string `json:"dockerfile"`
}

// WorkerInfo describes the worker agent deployed to every VM.
type WorkerInfo struct {
	Port       int    `json:"port"`
	GitRepo    string `json:"git_repo"`
	Dockerfile string `json:"dockerfile"`
}

// WorkerLimits holds the scaling bounds and per-worker resource thresholds.
// MemoryLimit and CPULimit are thresholds in percent.
type WorkerLimits struct {
	MinWorkers  int     `json:"min_workers"`
	MaxWorkers  int     `json:"max_workers"`
	MemoryLimit float64 `json:"memory_limit"`
	CPULimit    float64 `json:"cpu_limit"`
}

// Config is the master configuration, read once at startup and immutable
// thereafter.
type Config struct {
	AppInfo         AppInfo      `json:"app_info"`
	WorkerInfo      WorkerInfo   `json:"worker_info"`
	WorkerLimits    WorkerLimits `json:"worker_limits"`
	VirtualMachines []string     `json:"virtual_machines"`
}

// Load reads and validates the master config from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the config for values the master cannot run without.
func (c *Config) Validate() error {
	if c.WorkerInfo.Port == 0 {
		return fmt.Errorf("worker_info.port is required")
	}
	if len(c.VirtualMachines) == 0 {
		return fmt.Errorf("virtual_machines must not be empty")
	}
	if c.WorkerLimits.MinWorkers < 0 {
		return fmt.Errorf("worker_limits.min_workers must not be negative")
	}
	if c.WorkerLimits.MaxWorkers < c.WorkerLimits.MinWorkers {
		return fmt.Errorf(
			"worker_limits.max_workers (%d) must be >= min_workers (%d)",
			c.WorkerLimits.MaxWorkers, c.WorkerLimits.MinWorkers,
		)
	}
	return nil
}
