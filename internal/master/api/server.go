package api

import (
	"github.com/labstack/echo/v4"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/master/manager"
	"github.com/avoronin/fleetling/internal/master/registry"
)

// Server handles HTTP requests for the orchestrator API.
type Server struct {
	reg *registry.Registry
	mgr *manager.Manager
	cfg *config.Config
}

// NewServer creates a new orchestrator API server.
func NewServer(reg *registry.Registry, mgr *manager.Manager, cfg *config.Config) *Server {
	return &Server{
		reg: reg,
		mgr: mgr,
		cfg: cfg,
	}
}

// RegisterRoutes registers all orchestrator endpoints with the Echo router.
// The paths and methods are part of the external contract.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/", s.Dashboard)
	e.GET("/workers", s.ListWorkers)
	e.PUT("/workers", s.RefreshWorkers)
	e.GET("/healthy_hosts", s.ListHealthyHosts)
	e.GET("/settings", s.GetSettings)
}
