package poller

import (
	"context"
	"log"
	"time"

	"github.com/avoronin/fleetling/internal/master/manager"
)

const (
	// defaultInterval is the steady-state tick cadence.
	defaultInterval = 7 * time.Second
	// defaultRetryDelay is slept after a failed tick before the loop
	// restarts. The value is 15 seconds, not 60.
	defaultRetryDelay = 15 * time.Second
)

// Poller drives the control loop: it refreshes every worker's status on a
// fixed cadence and then hands the registry to the scale/heal engine.
type Poller struct {
	mgr        *manager.Manager
	interval   time.Duration
	retryDelay time.Duration
}

// New creates a poller over the given manager with the default cadence.
func New(mgr *manager.Manager) *Poller {
	return &Poller{
		mgr:        mgr,
		interval:   defaultInterval,
		retryDelay: defaultRetryDelay,
	}
}

// NewWithInterval creates a poller with a custom tick cadence and retry
// delay, used by tests.
func NewWithInterval(mgr *manager.Manager, interval, retryDelay time.Duration) *Poller {
	return &Poller{
		mgr:        mgr,
		interval:   interval,
		retryDelay: retryDelay,
	}
}

// Run probes the configured VMs once, then ticks until ctx is cancelled.
// A panic inside a tick is logged and the loop restarts after the retry
// delay; every other per-worker failure is already absorbed downstream.
func (p *Poller) Run(ctx context.Context) {
	p.mgr.Bootstrap(ctx)

	log.Println("workers poller started")

	for {
		p.safeTick(ctx)

		select {
		case <-ctx.Done():
			log.Println("workers poller stopped")
			return
		case <-time.After(p.interval):
		}
	}
}

// safeTick runs one tick, converting a panic into a delayed restart of the
// outer loop.
func (p *Poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("poller tick panicked, retrying after %s: %v", p.retryDelay, r)
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
		}
	}()

	p.tick(ctx)
}

// tick refreshes all worker statuses, then invokes the controller. Status
// updates are fully applied before the scale/heal pass observes them.
func (p *Poller) tick(ctx context.Context) {
	p.mgr.RefreshAll(ctx)
	p.mgr.CheckAndScale(ctx)
}
