package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/master/registry"
	"github.com/avoronin/fleetling/internal/master/remote"
	"github.com/avoronin/fleetling/internal/master/scheduler"
	"github.com/avoronin/fleetling/internal/types"
)

// fakeClient records every remote operation and answers from canned maps.
type fakeClient struct {
	mu         sync.Mutex
	statuses   map[string]types.WorkerStatusResponse
	statusErrs map[string]error
	startErrs  map[string]error
	stopErrs   map[string]error
	deployErrs map[string]error
	calls      []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses:   make(map[string]types.WorkerStatusResponse),
		statusErrs: make(map[string]error),
		startErrs:  make(map[string]error),
		stopErrs:   make(map[string]error),
		deployErrs: make(map[string]error),
	}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Status(_ context.Context, host string) (types.WorkerStatusResponse, error) {
	f.record("status " + host)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.statusErrs[host]; ok {
		return types.WorkerStatusResponse{}, err
	}
	if resp, ok := f.statuses[host]; ok {
		return resp, nil
	}
	return types.WorkerStatusResponse{}, errors.New("connection refused")
}

func (f *fakeClient) StartApp(_ context.Context, host string) error {
	f.record("start_app " + host)
	return f.startErrs[host]
}

func (f *fakeClient) StopApp(_ context.Context, host string) error {
	f.record("stop_app " + host)
	return f.stopErrs[host]
}

func (f *fakeClient) Deploy(_ context.Context, host, workerName string) error {
	f.record("deploy " + host + " " + workerName)
	return f.deployErrs[host]
}

func (f *fakeClient) RemoveContainer(_ context.Context, host, workerName string) error {
	f.record("remove_container " + host + " " + workerName)
	return nil
}

func (f *fakeClient) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []string
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			matched = append(matched, call)
		}
	}
	return matched
}

func newTestManager(client *fakeClient, limits config.WorkerLimits, vms []string) (*Manager, *registry.Registry) {
	reg := registry.New()
	mgr := New(reg, client, scheduler.NewFirstFree(), limits, vms)
	return mgr, reg
}

func TestColdBootstrapToMin(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 2, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2", "vm3"})

	ctx := context.Background()
	mgr.Bootstrap(ctx)
	if reg.Len() != 0 {
		t.Fatalf("registry size after failed bootstrap = %d, want 0", reg.Len())
	}

	mgr.RefreshAll(ctx)
	mgr.CheckAndScale(ctx)

	deploys := client.callsWithPrefix("deploy ")
	if len(deploys) != 2 {
		t.Fatalf("deploys = %v, want 2", deploys)
	}
	if !strings.HasPrefix(deploys[0], "deploy vm1 ") || !strings.HasPrefix(deploys[1], "deploy vm2 ") {
		t.Errorf("deploys = %v, want vm1 then vm2", deploys)
	}
	if reg.Len() != 2 {
		t.Errorf("registry size = %d, want 2", reg.Len())
	}
}

func TestBootstrapAdmitsAnsweringWorkers(t *testing.T) {
	client := newFakeClient()
	client.statuses["vm1"] = types.WorkerStatusResponse{
		WorkerName: "w1", Status: types.WorkerHealthy, MemoryUsage: 10, CPUUsage: 5,
	}
	limits := config.WorkerLimits{MinWorkers: 1, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2"})

	mgr.Bootstrap(context.Background())

	rec, err := reg.Get("w1")
	if err != nil {
		t.Fatalf("Get(w1) error = %v", err)
	}
	if rec.Host != "vm1" || rec.Status != types.WorkerHealthy {
		t.Errorf("record = %+v", rec)
	}
	if rec.MemoryUsage != 10 || rec.CPUUsage != 5 {
		t.Errorf("usage = %v/%v, want 10/5", rec.MemoryUsage, rec.CPUUsage)
	}
	if reg.Len() != 1 {
		t.Errorf("registry size = %d, want 1", reg.Len())
	}
}

func TestHealAppFailedWorker(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 1, MaxWorkers: 2, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2"})

	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerHealthy})
	_ = reg.Put("w2", types.WorkerRecord{Host: "vm2", Status: types.WorkerAppFailed})

	mgr.CheckAndScale(context.Background())

	starts := client.callsWithPrefix("start_app ")
	if len(starts) != 1 || starts[0] != "start_app vm2" {
		t.Errorf("start_app calls = %v, want exactly one against vm2", starts)
	}
	if len(client.callsWithPrefix("deploy ")) != 0 {
		t.Errorf("unexpected deploys: %v", client.calls)
	}
	if reg.Len() != 2 {
		t.Errorf("registry size = %d, want 2", reg.Len())
	}
}

func TestRestartFailedWorker(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 0, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1"})

	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerFailed})

	mgr.CheckAndScale(context.Background())

	wantCalls := []string{"stop_app vm1", "remove_container vm1 w1", "deploy vm1 w1"}
	for _, want := range wantCalls {
		if len(client.callsWithPrefix(want)) != 1 {
			t.Errorf("missing call %q in %v", want, client.calls)
		}
	}

	rec, err := reg.Get("w1")
	if err != nil {
		t.Fatalf("w1 missing after restart: %v", err)
	}
	if rec.Host != "vm1" {
		t.Errorf("host = %q, want vm1", rec.Host)
	}
}

func TestOverloadScaleUp(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 1, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2", "vm3"})

	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerHealthy, MemoryUsage: 90})

	mgr.CheckAndScale(context.Background())

	deploys := client.callsWithPrefix("deploy ")
	if len(deploys) != 1 || !strings.HasPrefix(deploys[0], "deploy vm2 ") {
		t.Errorf("deploys = %v, want one to vm2", deploys)
	}
	if reg.Len() != 2 {
		t.Errorf("registry size = %d, want 2", reg.Len())
	}
}

func TestScaleDown(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 1, MaxWorkers: 2, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2", "vm3"})

	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerHealthy})
	_ = reg.Put("w2", types.WorkerRecord{Host: "vm2", Status: types.WorkerHealthy})
	_ = reg.Put("w3", types.WorkerRecord{Host: "vm3", Status: types.WorkerHealthy})

	mgr.CheckAndScale(context.Background())

	if removed := client.callsWithPrefix("remove_container "); len(removed) != 1 {
		t.Errorf("remove_container calls = %v, want exactly one", removed)
	}
	if reg.Len() != 2 {
		t.Errorf("registry size = %d, want 2", reg.Len())
	}
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		limits      config.WorkerLimits
		records     map[string]types.WorkerRecord
		wantDeploys int
		wantRemoves int
	}{
		{
			name:   "healthy equals min triggers no scale up",
			limits: config.WorkerLimits{MinWorkers: 2, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80},
			records: map[string]types.WorkerRecord{
				"w1": {Host: "vm1", Status: types.WorkerHealthy},
				"w2": {Host: "vm2", Status: types.WorkerHealthy},
			},
		},
		{
			name:   "memory at limit triggers scale up",
			limits: config.WorkerLimits{MinWorkers: 1, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80},
			records: map[string]types.WorkerRecord{
				"w1": {Host: "vm1", Status: types.WorkerHealthy, MemoryUsage: 80},
			},
			wantDeploys: 1,
		},
		{
			name:   "healthy equals max triggers no scale down",
			limits: config.WorkerLimits{MinWorkers: 1, MaxWorkers: 2, MemoryLimit: 80, CPULimit: 80},
			records: map[string]types.WorkerRecord{
				"w1": {Host: "vm1", Status: types.WorkerHealthy},
				"w2": {Host: "vm2", Status: types.WorkerHealthy},
			},
		},
		{
			name:   "no free VM absorbs overload deploys",
			limits: config.WorkerLimits{MinWorkers: 1, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80},
			records: map[string]types.WorkerRecord{
				"w1": {Host: "vm1", Status: types.WorkerHealthy, MemoryUsage: 95},
				"w2": {Host: "vm2", Status: types.WorkerHealthy},
				"w3": {Host: "vm3", Status: types.WorkerHealthy},
			},
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				client := newFakeClient()
				mgr, reg := newTestManager(client, tt.limits, []string{"vm1", "vm2", "vm3"})
				for name, rec := range tt.records {
					_ = reg.Put(name, rec)
				}

				mgr.CheckAndScale(context.Background())

				if got := len(client.callsWithPrefix("deploy ")); got != tt.wantDeploys {
					t.Errorf("deploys = %d, want %d (%v)", got, tt.wantDeploys, client.calls)
				}
				if got := len(client.callsWithPrefix("remove_container ")); got != tt.wantRemoves {
					t.Errorf("removes = %d, want %d (%v)", got, tt.wantRemoves, client.calls)
				}
			},
		)
	}
}

func TestRefreshAllMapsOutcomes(t *testing.T) {
	client := newFakeClient()
	client.statuses["vm1"] = types.WorkerStatusResponse{
		WorkerName: "w1", Status: types.WorkerHealthy, MemoryUsage: 33, CPUUsage: 7,
	}
	client.statusErrs["vm2"] = &remote.StatusError{Host: "vm2", Code: 500}
	client.statusErrs["vm3"] = errors.New("dial tcp: timeout")

	limits := config.WorkerLimits{MinWorkers: 0, MaxWorkers: 5, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2", "vm3"})

	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerUnknown})
	_ = reg.Put("w2", types.WorkerRecord{Host: "vm2", Status: types.WorkerHealthy})
	_ = reg.Put("w3", types.WorkerRecord{Host: "vm3", Status: types.WorkerHealthy})

	mgr.RefreshAll(context.Background())

	wantStatuses := map[string]types.WorkerStatus{
		"w1": types.WorkerHealthy,
		"w2": types.WorkerAppFailed,
		"w3": types.WorkerFailed,
	}
	for name, want := range wantStatuses {
		rec, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", name, err)
		}
		if rec.Status != want {
			t.Errorf("%s status = %v, want %v", name, rec.Status, want)
		}
		if rec.LastSeen.IsZero() {
			t.Errorf("%s LastSeen not stamped", name)
		}
	}

	rec, _ := reg.Get("w1")
	if rec.MemoryUsage != 33 || rec.CPUUsage != 7 {
		t.Errorf("w1 usage = %v/%v, want 33/7", rec.MemoryUsage, rec.CPUUsage)
	}
}

func TestTicksAreIdempotentWithoutChange(t *testing.T) {
	client := newFakeClient()
	client.statuses["vm1"] = types.WorkerStatusResponse{WorkerName: "w1", Status: types.WorkerHealthy}
	client.statuses["vm2"] = types.WorkerStatusResponse{WorkerName: "w2", Status: types.WorkerHealthy}

	limits := config.WorkerLimits{MinWorkers: 1, MaxWorkers: 2, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1", "vm2"})

	ctx := context.Background()
	mgr.Bootstrap(ctx)

	mgr.RefreshAll(ctx)
	mgr.CheckAndScale(ctx)
	first := reg.Snapshot()

	mgr.RefreshAll(ctx)
	mgr.CheckAndScale(ctx)
	second := reg.Snapshot()

	if len(first) != len(second) {
		t.Fatalf("record count changed between ticks: %d vs %d", len(first), len(second))
	}
	for name, a := range first {
		b, ok := second[name]
		if !ok {
			t.Fatalf("worker %s vanished between ticks", name)
		}
		a.LastSeen = b.LastSeen
		if a != b {
			t.Errorf("worker %s changed between ticks: %+v vs %+v", name, a, b)
		}
	}
}

func TestDeployThenRemoveRoundTrip(t *testing.T) {
	client := newFakeClient()
	limits := config.WorkerLimits{MinWorkers: 0, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1"})

	ctx := context.Background()
	if err := mgr.DeployWorker(ctx, "vm1"); err != nil {
		t.Fatalf("DeployWorker() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry size after deploy = %d, want 1", reg.Len())
	}

	var name string
	for n := range reg.Snapshot() {
		name = n
	}
	if !strings.HasPrefix(name, "worker-") {
		t.Errorf("deployed name = %q, want worker-<uuid> prefix", name)
	}

	if err := mgr.RemoveWorker(ctx, name); err != nil {
		t.Fatalf("RemoveWorker() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry size after remove = %d, want 0", reg.Len())
	}
	if _, taken := reg.OccupiedHosts()["vm1"]; taken {
		t.Error("vm1 still occupied after remove")
	}
}

func TestRemoveWorkerAbortsOnStopFailure(t *testing.T) {
	client := newFakeClient()
	client.stopErrs["vm1"] = errors.New("agent exploded")

	limits := config.WorkerLimits{MinWorkers: 0, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1"})
	_ = reg.Put("w1", types.WorkerRecord{Host: "vm1", Status: types.WorkerHealthy})

	if err := mgr.RemoveWorker(context.Background(), "w1"); err == nil {
		t.Fatal("RemoveWorker() expected error on stop failure")
	}
	if _, err := reg.Get("w1"); err != nil {
		t.Error("record removed despite aborted removal")
	}
	if len(client.callsWithPrefix("remove_container ")) != 0 {
		t.Error("remove_container called after failed stop_app")
	}
}

func TestDeployFailureLeavesHostFree(t *testing.T) {
	client := newFakeClient()
	client.deployErrs["vm1"] = errors.New("scp failed")

	limits := config.WorkerLimits{MinWorkers: 0, MaxWorkers: 3, MemoryLimit: 80, CPULimit: 80}
	mgr, reg := newTestManager(client, limits, []string{"vm1"})

	if err := mgr.DeployWorker(context.Background(), "vm1"); err == nil {
		t.Fatal("DeployWorker() expected error")
	}
	if reg.Len() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Len())
	}
}
