package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/types"
)

// SettingsResponse is the body of GET /settings.
type SettingsResponse struct {
	WorkerLimits    config.WorkerLimits `json:"worker_limits"`
	VirtualMachines []string            `json:"virtual_machines"`
	WorkerPort      int                 `json:"worker_port"`
	AppPort         int                 `json:"app_port"`
}

// Dashboard handles GET /.
// Serves the static operator page.
func (s *Server) Dashboard(c echo.Context) error {
	return c.HTML(http.StatusOK, dashboardHTML)
}

// ListWorkers handles GET /workers.
// Returns a snapshot of the worker registry keyed by worker name.
func (s *Server) ListWorkers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reg.Snapshot())
}

// RefreshWorkers handles PUT /workers.
// Forces a status refresh of every known worker, awaiting all fan-outs
// before answering. Downstream failures are absorbed into worker statuses,
// same as the poller's status path.
func (s *Server) RefreshWorkers(c echo.Context) error {
	s.mgr.RefreshAll(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// ListHealthyHosts handles GET /healthy_hosts.
// Returns "<host>:<app_port>" for every healthy worker, for upstream
// callers discovering live application instances.
func (s *Server) ListHealthyHosts(c echo.Context) error {
	hosts := make([]string, 0)
	for _, rec := range s.reg.Snapshot() {
		if rec.Status == types.WorkerHealthy {
			hosts = append(hosts, fmt.Sprintf("%s:%d", rec.Host, s.cfg.AppInfo.AppPort))
		}
	}
	return c.JSON(http.StatusOK, hosts)
}

// GetSettings handles GET /settings.
func (s *Server) GetSettings(c echo.Context) error {
	return c.JSON(
		http.StatusOK, SettingsResponse{
			WorkerLimits:    s.cfg.WorkerLimits,
			VirtualMachines: s.cfg.VirtualMachines,
			WorkerPort:      s.cfg.WorkerInfo.Port,
			AppPort:         s.cfg.AppInfo.AppPort,
		},
	)
}
