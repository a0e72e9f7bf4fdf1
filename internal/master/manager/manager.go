package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/master/registry"
	"github.com/avoronin/fleetling/internal/master/remote"
	"github.com/avoronin/fleetling/internal/master/scheduler"
	"github.com/avoronin/fleetling/internal/types"
)

// AgentClient is the slice of the worker agent client the manager drives.
type AgentClient interface {
	Status(ctx context.Context, host string) (types.WorkerStatusResponse, error)
	StartApp(ctx context.Context, host string) error
	StopApp(ctx context.Context, host string) error
	Deploy(ctx context.Context, host, workerName string) error
	RemoveContainer(ctx context.Context, host, workerName string) error
}

// Manager owns the scale/heal decisions for the worker fleet. It reads
// registry snapshots and acts through the agent client.
//
// Mutating remote operations (deploy, start_app, stop_app, remove) are
// serialized by a single coarse operation lock: the remote shell steps are
// not idempotent at fine granularity and the fleet is small, so global
// serialization beats per-host reasoning. Status fetches run outside it.
type Manager struct {
	reg    *registry.Registry
	client AgentClient
	sched  scheduler.Scheduler
	limits config.WorkerLimits
	vms    []string

	opMu sync.Mutex
}

// New creates a manager over the given registry and agent client.
func New(
	reg *registry.Registry, client AgentClient, sched scheduler.Scheduler,
	limits config.WorkerLimits, vms []string,
) *Manager {
	return &Manager{
		reg:    reg,
		client: client,
		sched:  sched,
		limits: limits,
		vms:    vms,
	}
}

// Bootstrap probes every configured VM once and admits workers that answer
// with their own name. Probe failures are logged and skipped; they never
// abort bootstrap.
func (m *Manager) Bootstrap(ctx context.Context) {
	log.Println("initializing worker registry from configured VMs")

	for _, vm := range m.vms {
		status, err := m.client.Status(ctx, vm)
		if err != nil {
			log.Printf("no worker on VM %s: %v", vm, err)
			continue
		}
		if status.WorkerName == "" || status.Status == "" {
			log.Printf("VM %s answered without a worker name, skipping", vm)
			continue
		}

		rec := types.WorkerRecord{
			Name:        status.WorkerName,
			Host:        vm,
			Status:      status.Status,
			MemoryUsage: status.MemoryUsage,
			CPUUsage:    status.CPUUsage,
			LastSeen:    time.Now(),
		}
		if err := m.reg.Put(status.WorkerName, rec); err != nil {
			log.Printf("failed to admit worker %s on %s: %v", status.WorkerName, vm, err)
			continue
		}
		log.Printf("worker %s initialized with status %s on %s", status.WorkerName, status.Status, vm)
	}
}

// RefreshAll issues concurrent status requests to every known worker and
// writes the outcome of each into the registry before returning. Per-worker
// failures are absorbed: they become the worker's status, not an error.
func (m *Manager) RefreshAll(ctx context.Context) {
	snapshot := m.reg.Snapshot()

	g, gctx := errgroup.WithContext(ctx)
	for name, rec := range snapshot {
		g.Go(func() error {
			m.refreshWorker(gctx, name, rec)
			return nil
		})
	}
	_ = g.Wait()
}

// refreshWorker maps one status call onto the record: 200 merges the
// response, a non-200 answer means the app failed under a running worker,
// and a transport failure means the worker itself is gone.
func (m *Manager) refreshWorker(ctx context.Context, name string, rec types.WorkerRecord) {
	status, err := m.client.Status(ctx, rec.Host)
	now := time.Now()

	var regErr error
	switch {
	case err == nil:
		regErr = m.reg.Merge(name, status, now)
		log.Printf("updated worker %s status to %s", name, status.Status)
	case isStatusError(err):
		regErr = m.reg.SetStatus(name, types.WorkerAppFailed, now)
		log.Printf("worker %s rejected status request: %v", name, err)
	default:
		regErr = m.reg.SetStatus(name, types.WorkerFailed, now)
		log.Printf("worker %s unreachable: %v", name, err)
	}

	if regErr != nil && !errors.Is(regErr, registry.ErrWorkerNotFound) {
		log.Printf("failed to record status for worker %s: %v", name, regErr)
	}
}

func isStatusError(err error) bool {
	var statusErr *remote.StatusError
	return errors.As(err, &statusErr)
}

// CheckAndScale runs one pass of the scale/heal engine over a registry
// snapshot. Failed actions are logged and never abort the pass; the next
// tick observes the resulting state and reacts again.
func (m *Manager) CheckAndScale(ctx context.Context) {
	snapshot := m.reg.Snapshot()

	healthy := 0
	for _, rec := range snapshot {
		if rec.Status == types.WorkerHealthy {
			healthy++
		}
	}

	for name, rec := range snapshot {
		switch {
		case rec.Status == types.WorkerAppFailed && rec.Host != "":
			if err := m.startApp(ctx, name, rec.Host); err != nil {
				log.Printf("failed to start app for worker %s on %s: %v", name, rec.Host, err)
			}

		case rec.Status != types.WorkerHealthy:
			log.Printf("worker %s is not healthy, restarting", name)
			if err := m.RestartWorker(ctx, name); err != nil {
				log.Printf("failed to restart worker %s: %v", name, err)
			}

		default:
			if rec.MemoryUsage >= m.limits.MemoryLimit || rec.CPUUsage >= m.limits.CPULimit {
				log.Printf("worker %s reached resource limits, trying to deploy a new worker", name)
				m.scaleUpOne(ctx)
			}
		}
	}

	switch {
	case healthy < m.limits.MinWorkers:
		log.Printf("not enough healthy workers, expected at least %d, found %d", m.limits.MinWorkers, healthy)
		for i := 0; i < m.limits.MinWorkers-healthy; i++ {
			if !m.scaleUpOne(ctx) {
				break
			}
		}

	case healthy > m.limits.MaxWorkers:
		log.Printf("too many healthy workers, expected at most %d, found %d", m.limits.MaxWorkers, healthy)
		for i := 0; i < healthy-m.limits.MaxWorkers; i++ {
			name := m.selectHealthyWorker()
			if name == "" {
				log.Println("no healthy worker found to remove")
				break
			}
			if err := m.RemoveWorker(ctx, name); err != nil {
				log.Printf("failed to remove worker %s: %v", name, err)
			}
		}

	default:
		log.Printf("healthy workers within limits, current count: %d", healthy)
	}
}

// scaleUpOne deploys a worker to the first free VM. Returns false when the
// pool is exhausted.
func (m *Manager) scaleUpOne(ctx context.Context) bool {
	free, err := m.sched.SelectVM(m.vms, m.reg.OccupiedHosts())
	if err != nil {
		log.Printf("cannot scale up: %v", err)
		return false
	}
	if err := m.DeployWorker(ctx, free); err != nil {
		log.Printf("failed to deploy worker to %s: %v", free, err)
	}
	return true
}

// DeployWorker provisions a fresh worker agent on host under a new name and
// starts its app. A start_app failure is logged but the deploy is not
// rolled back; the agent container stays on the host for the next tick.
func (m *Manager) DeployWorker(ctx context.Context, host string) error {
	name := "worker-" + uuid.NewString()

	if err := m.deployToHost(ctx, host, name); err != nil {
		return err
	}

	if err := m.startApp(ctx, name, host); err != nil {
		log.Printf("failed to start app on host %s for worker %s: %v", host, name, err)
	}

	return nil
}

// startApp asks the agent on host to start the application container and,
// on success, records the worker as admitted.
func (m *Manager) startApp(ctx context.Context, name, host string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.client.StartApp(ctx, host); err != nil {
		return err
	}

	log.Printf("successfully started app for worker %s on %s", name, host)
	if err := m.reg.Put(name, types.WorkerRecord{Name: name, Host: host}); err != nil {
		log.Printf("failed to record worker %s on %s: %v", name, host, err)
	}
	return nil
}

// deployToHost runs the remote deploy script for workerName on host.
func (m *Manager) deployToHost(ctx context.Context, host, workerName string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.client.Deploy(ctx, host, workerName); err != nil {
		return fmt.Errorf("deploy worker %s to %s: %w", workerName, host, err)
	}

	log.Printf("worker %s deployed to host %s", workerName, host)
	return nil
}

// RestartWorker tears the worker down and redeploys an agent to the same
// host under the same name. The deploy script starts only the agent
// container and no start_app call follows here; the re-admitted record's
// app is started by a later tick once the agent reports it as not running.
// If the redeploy fails the record is already gone and the host is free for
// the next tick.
func (m *Manager) RestartWorker(ctx context.Context, name string) error {
	rec, err := m.reg.Get(name)
	if err != nil {
		return fmt.Errorf("restart worker %s: %w", name, err)
	}
	host := rec.Host

	if err := m.RemoveWorker(ctx, name); err != nil {
		return err
	}

	if err := m.deployToHost(ctx, host, name); err != nil {
		return err
	}

	if err := m.reg.Put(name, types.WorkerRecord{Name: name, Host: host, Status: types.WorkerUnknown}); err != nil {
		log.Printf("failed to re-admit worker %s on %s: %v", name, host, err)
	}

	log.Printf("worker %s restarted on %s", name, host)
	return nil
}

// RemoveWorker stops the app, removes the agent container, and deletes the
// record. A failure in either remote step aborts the removal so the record
// is re-evaluated next tick.
func (m *Manager) RemoveWorker(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	rec, err := m.reg.Get(name)
	if err != nil {
		log.Printf("worker %s not found for removal", name)
		return nil
	}

	if err := m.client.StopApp(ctx, rec.Host); err != nil {
		return fmt.Errorf("stop app on worker %s at %s: %w", name, rec.Host, err)
	}
	log.Printf("application stopped on worker %s at %s", name, rec.Host)

	if err := m.client.RemoveContainer(ctx, rec.Host, name); err != nil {
		return fmt.Errorf("remove worker %s from %s: %w", name, rec.Host, err)
	}

	if err := m.reg.Delete(name); err != nil && !errors.Is(err, registry.ErrWorkerNotFound) {
		return err
	}

	log.Printf("worker %s removed from %s", name, rec.Host)
	return nil
}

// selectHealthyWorker picks any worker whose status is healthy; the first
// match is acceptable.
func (m *Manager) selectHealthyWorker() string {
	for name, rec := range m.reg.Snapshot() {
		if rec.Status == types.WorkerHealthy {
			return name
		}
	}
	return ""
}
