package build

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/remote"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeWorkerBuild struct {
	result *remote.WorkerResult
	err    error
}

func (f *fakeWorkerBuild) Await(ctx context.Context) (*remote.WorkerResult, error) {
	return f.result, f.err
}

func (f *fakeWorkerBuild) Cancel(ctx context.Context) error { return nil }

// blockingWorkerBuild never finishes on its own; Await returns only when
// the passed context falls. It records whether Cancel reached it.
type blockingWorkerBuild struct {
	mu       sync.Mutex
	canceled bool
}

func (b *blockingWorkerBuild) Await(ctx context.Context) (*remote.WorkerResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingWorkerBuild) Cancel(ctx context.Context) error {
	b.mu.Lock()
	b.canceled = true
	b.mu.Unlock()
	return nil
}

func (b *blockingWorkerBuild) wasCanceled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canceled
}

// fakeDispatcher records every dispatch and answers with a canned per-host
// outcome, or with a fixed WorkerBuild when build is set
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	inputs     [][]byte
	outcome    func(host remote.Host, input []byte) (*remote.WorkerResult, error)
	build      remote.WorkerBuild
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, host remote.Host, input []byte) (remote.WorkerBuild, error) {
	d.mu.Lock()
	d.dispatched = append(d.dispatched, host.Hostname)
	d.inputs = append(d.inputs, append([]byte(nil), input...))
	d.mu.Unlock()

	if d.build != nil {
		return d.build, nil
	}
	res, err := d.outcome(host, input)
	if err != nil {
		return nil, err
	}
	return &fakeWorkerBuild{result: res}, nil
}

func (d *fakeDispatcher) hosts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dispatched...)
}

func succeedAll(host remote.Host, input []byte) (*remote.WorkerResult, error) {
	return &remote.WorkerResult{Status: remote.WorkerSucceeded}, nil
}

// ============================================================================
// Fixture
// ============================================================================

func orchestrateFixture(t *testing.T, dispatcher remote.Dispatcher, config map[string][]remote.HostConfig) (*OrchestratePlugin, *remote.Ledger) {
	t.Helper()
	pool, err := remote.NewPool(config)
	if err != nil {
		t.Fatalf("building pool: %v", err)
	}
	ledger, err := remote.NewLedger(remote.DefaultLedgerConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("building ledger: %v", err)
	}
	plugin := &OrchestratePlugin{
		Selector:   remote.NewSelector(pool, ledger),
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Config: OrchestrateConfig{
			AcquireTimeout:  2 * time.Second,
			AcquireDelay:    time.Millisecond,
			AcquireMaxDelay: 5 * time.Millisecond,
			PollInterval:    5 * time.Millisecond,
		},
	}
	return plugin, ledger
}

func twoPlatformConfig() map[string][]remote.HostConfig {
	return map[string][]remote.HostConfig{
		"x86_64":  {{Hostname: "amd-1", Username: "builder", Slots: 2}},
		"aarch64": {{Hostname: "arm-1", Username: "builder", Slots: 2}},
	}
}

func twoPlatformParams() *Params {
	p := testParams()
	p.Platforms = []string{"x86_64", "aarch64"}
	return p
}

// ============================================================================
// Orchestration
// ============================================================================

func TestOrchestrate_AllPlatformsSucceed(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: succeedAll}
	plugin, ledger := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", twoPlatformParams())

	value, err := plugin.Run(context.Background(), w, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hosts, ok := value.(map[string]string)
	if !ok {
		t.Fatalf("expected host map result, got %T", value)
	}
	if hosts["x86_64"] != "amd-1" || hosts["aarch64"] != "arm-1" {
		t.Errorf("unexpected host assignment: %v", hosts)
	}

	results := w.PlatformResults()
	if len(results) != 2 {
		t.Fatalf("expected 2 platform results, got %d", len(results))
	}
	for _, pr := range results {
		if pr.Status != string(StatusSucceeded) {
			t.Errorf("platform %s: expected succeeded, got %s", pr.Platform, pr.Status)
		}
	}

	for _, hostname := range []string{"amd-1", "arm-1"} {
		occupied, err := ledger.Occupied(hostname)
		if err != nil {
			t.Fatalf("occupied(%s): %v", hostname, err)
		}
		if occupied != 0 {
			t.Errorf("host %s: expected slot released, %d still occupied", hostname, occupied)
		}
	}
}

func TestOrchestrate_WorkerInputIsSinglePlatform(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: succeedAll}
	plugin, _ := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", twoPlatformParams())

	if _, err := plugin.Run(context.Background(), w, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for _, input := range dispatcher.inputs {
		var p Params
		if err := json.Unmarshal(input, &p); err != nil {
			t.Fatalf("decoding worker input: %v", err)
		}
		if len(p.Platforms) != 1 {
			t.Fatalf("expected single-platform input, got %v", p.Platforms)
		}
		if p.Component != "app" || p.Source.URI == "" {
			t.Errorf("worker input lost build identity: %+v", p)
		}
		seen[p.Platforms[0]] = true
	}
	if !seen["x86_64"] || !seen["aarch64"] {
		t.Errorf("expected one dispatch per platform, got %v", seen)
	}
}

func TestOrchestrate_OnePlatformFailureDoesNotAbortOthers(t *testing.T) {
	dispatcher := &fakeDispatcher{
		outcome: func(host remote.Host, input []byte) (*remote.WorkerResult, error) {
			if host.Hostname == "arm-1" {
				return &remote.WorkerResult{Status: remote.WorkerFailed, Error: "compile error"}, nil
			}
			return &remote.WorkerResult{Status: remote.WorkerSucceeded}, nil
		},
	}
	plugin, ledger := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", twoPlatformParams())

	_, err := plugin.Run(context.Background(), w, nil)
	if !errors.Is(err, errors.ErrWorkerFailed) {
		t.Fatalf("expected ErrWorkerFailed, got %v", err)
	}
	if len(dispatcher.hosts()) != 2 {
		t.Errorf("expected both platforms dispatched, got %v", dispatcher.hosts())
	}

	byPlatform := make(map[string]PlatformResult)
	for _, pr := range w.PlatformResults() {
		byPlatform[pr.Platform] = pr
	}
	if byPlatform["x86_64"].Status != string(StatusSucceeded) {
		t.Errorf("healthy platform affected: %+v", byPlatform["x86_64"])
	}
	if byPlatform["aarch64"].Status != string(StatusFailed) || byPlatform["aarch64"].Error != "compile error" {
		t.Errorf("failed platform not recorded: %+v", byPlatform["aarch64"])
	}

	for _, hostname := range []string{"amd-1", "arm-1"} {
		if occupied, _ := ledger.Occupied(hostname); occupied != 0 {
			t.Errorf("host %s: slot leaked after failure", hostname)
		}
	}
}

func TestOrchestrate_DispatchErrorReleasesSlot(t *testing.T) {
	dispatcher := &fakeDispatcher{
		outcome: func(host remote.Host, input []byte) (*remote.WorkerResult, error) {
			return nil, errors.ErrDispatchFailed.WithMessage("connection refused")
		},
	}
	plugin, ledger := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", testParams())

	_, err := plugin.Run(context.Background(), w, nil)
	if !errors.Is(err, errors.ErrWorkerFailed) {
		t.Fatalf("expected ErrWorkerFailed, got %v", err)
	}
	if occupied, _ := ledger.Occupied("amd-1"); occupied != 0 {
		t.Errorf("slot leaked after dispatch failure: %d occupied", occupied)
	}
}

func TestOrchestrate_WorkerResultsMergedIntoWorkflow(t *testing.T) {
	workerDoc := &Document{
		BuildID: "b1",
		Status:  StatusSucceeded,
		Results: map[Phase][]PluginResult{
			PhaseBuildstep: {{Plugin: "worker_build", Value: "image-id"}},
		},
	}
	data, err := workerDoc.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dispatcher := &fakeDispatcher{
		outcome: func(host remote.Host, input []byte) (*remote.WorkerResult, error) {
			return &remote.WorkerResult{Status: remote.WorkerSucceeded, Document: data}, nil
		},
	}
	plugin, _ := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", testParams())

	if _, err := plugin.Run(context.Background(), w, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := w.PlatformResults()
	if len(results) != 1 {
		t.Fatalf("expected 1 platform result, got %d", len(results))
	}
	steps := results[0].Results["buildstep"]
	if len(steps) != 1 || steps[0].Plugin != "worker_build" {
		t.Errorf("worker results not carried over: %v", results[0].Results)
	}
}

func TestOrchestrate_CancellationTakesPrecedence(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: succeedAll}
	plugin, _ := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", twoPlatformParams())
	w.Cancel()

	_, err := plugin.Run(context.Background(), w, nil)
	if !errors.Is(err, errors.ErrBuildCanceled) {
		t.Fatalf("expected ErrBuildCanceled, got %v", err)
	}
	for _, pr := range w.PlatformResults() {
		if pr.Status != string(StatusCanceled) {
			t.Errorf("platform %s: expected canceled, got %s", pr.Platform, pr.Status)
		}
	}
}

func TestOrchestrate_CancelDuringAwaitStopsWorker(t *testing.T) {
	wb := &blockingWorkerBuild{}
	dispatcher := &fakeDispatcher{build: wb}
	plugin, ledger := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	w := NewWorkflow("b1", testParams())

	// Cancellation flips the workflow flag and fells the job context, the
	// same sequence the build manager performs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Cancel()
		cancel()
	}()

	_, err := plugin.Run(ctx, w, nil)
	if !errors.Is(err, errors.ErrBuildCanceled) {
		t.Fatalf("expected ErrBuildCanceled, got %v", err)
	}

	results := w.PlatformResults()
	if len(results) != 1 || results[0].Status != string(StatusCanceled) {
		t.Fatalf("expected canceled platform result, got %+v", results)
	}
	if !wb.wasCanceled() {
		t.Error("expected the remote worker to receive a cancel")
	}
	if occupied, _ := ledger.Occupied("amd-1"); occupied != 0 {
		t.Errorf("slot leaked after cancellation: %d occupied", occupied)
	}
}

func TestOrchestrate_AcquireDeadlineFailsOnlyStarvedPlatform(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: succeedAll}
	plugin, ledger := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	plugin.Config.AcquireTimeout = 200 * time.Millisecond

	// Every aarch64 slot is held elsewhere, so that platform can never be
	// placed before the deadline
	arm := remote.Host{Hostname: "arm-1", Username: "builder", Enabled: true, Slots: 2}
	for i := 0; i < arm.Slots; i++ {
		if _, err := ledger.TryAcquire(arm); err != nil {
			t.Fatalf("pre-occupying slot: %v", err)
		}
	}

	w := NewWorkflow("b1", twoPlatformParams())
	_, err := plugin.Run(context.Background(), w, nil)
	if !errors.Is(err, errors.ErrWorkerFailed) {
		t.Fatalf("expected ErrWorkerFailed, got %v", err)
	}

	byPlatform := make(map[string]PlatformResult)
	for _, pr := range w.PlatformResults() {
		byPlatform[pr.Platform] = pr
	}
	if byPlatform["x86_64"].Status != string(StatusSucceeded) {
		t.Errorf("sibling platform affected by starvation: %+v", byPlatform["x86_64"])
	}
	starved := byPlatform["aarch64"]
	if starved.Status != string(StatusFailed) {
		t.Errorf("starved platform: expected failed, got %s", starved.Status)
	}
	if !strings.Contains(starved.Error, "no host for platform aarch64") {
		t.Errorf("starved platform error lacks acquisition detail: %q", starved.Error)
	}

	if hosts := dispatcher.hosts(); len(hosts) != 1 || hosts[0] != "amd-1" {
		t.Errorf("expected only the placeable platform dispatched, got %v", hosts)
	}
	if occupied, _ := ledger.Occupied("amd-1"); occupied != 0 {
		t.Errorf("sibling slot leaked: %d occupied", occupied)
	}
	if occupied, _ := ledger.Occupied("arm-1"); occupied != arm.Slots {
		t.Errorf("foreign leases disturbed: %d occupied", occupied)
	}
}

func TestOrchestrate_UnknownPlatformFailsThatPlatform(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: succeedAll}
	plugin, _ := orchestrateFixture(t, dispatcher, twoPlatformConfig())
	p := testParams()
	p.Platforms = []string{"riscv64"}
	w := NewWorkflow("b1", p)

	_, err := plugin.Run(context.Background(), w, nil)
	if !errors.Is(err, errors.ErrWorkerFailed) {
		t.Fatalf("expected ErrWorkerFailed, got %v", err)
	}
	results := w.PlatformResults()
	if len(results) != 1 || results[0].Status != string(StatusFailed) {
		t.Fatalf("expected failed platform result, got %v", results)
	}
	if len(dispatcher.hosts()) != 0 {
		t.Errorf("nothing should be dispatched without a host, got %v", dispatcher.hosts())
	}
}
