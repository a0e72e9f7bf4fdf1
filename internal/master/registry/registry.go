package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/avoronin/fleetling/internal/types"
)

var (
	// ErrWorkerNotFound is returned when a worker is not in the registry
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrHostChanged is returned when a put would move an existing worker
	// to a different host without an intervening delete
	ErrHostChanged = errors.New("worker host may not change")
)

// Registry is the master's in-memory mapping from worker name to its
// last-observed record. All mutating operations are serialized by a single
// mutex; the registry never performs I/O while holding it.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]types.WorkerRecord
}

// New creates an empty worker registry.
func New() *Registry {
	return &Registry{
		workers: make(map[string]types.WorkerRecord),
	}
}

// Put inserts a record or merges the non-zero fields of rec into an
// existing one. Host is immutable once set: merging a record with a
// different host fails with ErrHostChanged.
func (r *Registry) Put(name string, rec types.WorkerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Name = name

	existing, ok := r.workers[name]
	if !ok {
		r.workers[name] = rec
		return nil
	}

	if rec.Host != "" {
		if existing.Host != "" && existing.Host != rec.Host {
			return ErrHostChanged
		}
		existing.Host = rec.Host
	}
	if rec.Status != "" {
		existing.Status = rec.Status
	}
	if rec.MemoryUsage != 0 {
		existing.MemoryUsage = rec.MemoryUsage
	}
	if rec.CPUUsage != 0 {
		existing.CPUUsage = rec.CPUUsage
	}
	if !rec.LastSeen.IsZero() {
		existing.LastSeen = rec.LastSeen
	}

	r.workers[name] = existing
	return nil
}

// SetStatus sets the status of a known worker and stamps the observation
// time. Unknown names are an error: a record is only ever born through Put,
// so a patch against a missing name means the worker was removed mid-tick.
func (r *Registry) SetStatus(name string, status types.WorkerStatus, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[name]
	if !ok {
		return ErrWorkerNotFound
	}

	rec.Status = status
	rec.LastSeen = seenAt
	r.workers[name] = rec
	return nil
}

// Merge applies a worker status response and observation time to a known
// worker in one critical section.
func (r *Registry) Merge(name string, resp types.WorkerStatusResponse, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[name]
	if !ok {
		return ErrWorkerNotFound
	}

	rec.Status = resp.Status
	rec.MemoryUsage = resp.MemoryUsage
	rec.CPUUsage = resp.CPUUsage
	rec.LastSeen = seenAt
	r.workers[name] = rec
	return nil
}

// Delete removes a worker from the registry.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[name]; !ok {
		return ErrWorkerNotFound
	}

	delete(r.workers, name)
	return nil
}

// Get retrieves a single record by name.
func (r *Registry) Get(name string) (types.WorkerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.workers[name]
	if !ok {
		return types.WorkerRecord{}, ErrWorkerNotFound
	}

	return rec, nil
}

// Snapshot returns an independent copy of all records, safe to iterate
// without holding the lock.
func (r *Registry) Snapshot() map[string]types.WorkerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]types.WorkerRecord, len(r.workers))
	for name, rec := range r.workers {
		snap[name] = rec
	}

	return snap
}

// OccupiedHosts returns the set of hosts currently claimed by a worker.
func (r *Registry) OccupiedHosts() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := make(map[string]struct{}, len(r.workers))
	for _, rec := range r.workers {
		if rec.Host != "" {
			hosts[rec.Host] = struct{}{}
		}
	}

	return hosts
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.workers)
}
