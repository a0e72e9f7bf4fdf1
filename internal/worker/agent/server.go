package agent

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/avoronin/fleetling/internal/types"
)

// Runner is the app lifecycle surface the agent's handlers drive.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) types.WorkerStatus
	MemoryUsage(ctx context.Context) float64
	CPUUsage(ctx context.Context) float64
}

// Server handles the worker agent's HTTP surface against the master.
type Server struct {
	workerName string
	runner     Runner
}

// NewServer creates a new worker agent server.
func NewServer(workerName string, runner Runner) *Server {
	return &Server{
		workerName: workerName,
		runner:     runner,
	}
}

// RegisterRoutes registers the agent endpoints with the Echo router.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/status", s.GetStatus)
	e.POST("/start_app", s.StartApp)
	e.POST("/stop_app", s.StopApp)
}
