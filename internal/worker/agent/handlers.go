package agent

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avoronin/fleetling/internal/types"
)

// GetStatus handles GET /status.
// Reports the worker's name, app health, and current resource usage.
func (s *Server) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	return c.JSON(
		http.StatusOK, types.WorkerStatusResponse{
			WorkerName:  s.workerName,
			Status:      s.runner.Status(ctx),
			MemoryUsage: s.runner.MemoryUsage(ctx),
			CPUUsage:    s.runner.CPUUsage(ctx),
		},
	)
}

// StartApp handles POST /start_app.
// Builds and runs the application container; 200 is the only success.
func (s *Server) StartApp(c echo.Context) error {
	if err := s.runner.Start(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "app started successfully"})
}

// StopApp handles POST /stop_app.
func (s *Server) StopApp(c echo.Context) error {
	if err := s.runner.Stop(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "app stopped successfully"})
}
