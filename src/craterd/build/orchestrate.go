package build

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/remote"
)

// OrchestrateConfig tunes the coordinator's slot acquisition and worker
// supervision behavior.
type OrchestrateConfig struct {
	// AcquireTimeout bounds the total time spent waiting for a slot on
	// any host serving the platform
	AcquireTimeout time.Duration

	// AcquireDelay is the initial backoff between acquisition attempts;
	// attempts back off exponentially up to AcquireMaxDelay
	AcquireDelay    time.Duration
	AcquireMaxDelay time.Duration

	// BuildTimeout bounds one worker build from dispatch to terminal
	// state; zero disables the bound
	BuildTimeout time.Duration

	// PollInterval is how often an awaiting coordinator checks for
	// parent-build cancellation
	PollInterval time.Duration
}

// DefaultOrchestrateConfig returns the coordinator defaults
func DefaultOrchestrateConfig() OrchestrateConfig {
	return OrchestrateConfig{
		AcquireTimeout:  30 * time.Minute,
		AcquireDelay:    5 * time.Second,
		AcquireMaxDelay: 2 * time.Minute,
		BuildTimeout:    4 * time.Hour,
		PollInterval:    10 * time.Second,
	}
}

// OrchestratePlugin is the coordinating buildstep: it fans the build out to
// one worker per target platform, each on a remote host claimed through the
// slot ledger, and merges the workers' outcomes back into the parent
// workflow. Platforms run concurrently and independently; one platform's
// failure never aborts the others, so partial diagnostics survive.
type OrchestratePlugin struct {
	Selector   *remote.Selector
	Ledger     *remote.Ledger
	Dispatcher remote.Dispatcher
	Config     OrchestrateConfig
}

func (o *OrchestratePlugin) Key() string  { return "orchestrate_build" }
func (o *OrchestratePlugin) Phase() Phase { return PhaseBuildstep }

// Run starts one worker build per platform and waits for all of them. The
// build fails if any platform fails and is canceled if the parent build was
// canceled; cancellation takes precedence in the reported error.
func (o *OrchestratePlugin) Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error) {
	platforms := w.Params.Platforms
	results := make([]PlatformResult, len(platforms))

	var wg sync.WaitGroup
	for i, platform := range platforms {
		wg.Add(1)
		go func(i int, platform string) {
			defer wg.Done()
			results[i] = o.buildPlatform(ctx, w, platform)
		}(i, platform)
	}
	wg.Wait()

	w.AddPlatformResults(results...)

	var failed []string
	hosts := make(map[string]string, len(results))
	for _, pr := range results {
		hosts[pr.Platform] = pr.Host
		if pr.Status != string(StatusSucceeded) {
			failed = append(failed, pr.Platform+" ("+pr.Status+")")
		}
	}

	if w.Canceled() {
		return nil, errors.ErrBuildCanceled.WithMessage("build canceled during orchestration")
	}
	if len(failed) > 0 {
		return nil, errors.ErrWorkerFailed.WithMessagef(
			"worker builds failed: %s", strings.Join(failed, ", "))
	}

	log.Info("All platform builds succeeded", "build_id", w.BuildID, "platforms", len(platforms))
	return hosts, nil
}

// buildPlatform runs one platform's worker build end to end: claim a slot,
// dispatch, supervise, release. The claimed slot is released on every path
// out of this function.
func (o *OrchestratePlugin) buildPlatform(ctx context.Context, w *Workflow, platform string) PlatformResult {
	result := PlatformResult{Platform: platform, Status: string(StatusFailed)}

	acq, err := o.acquireSlot(ctx, w, platform)
	if err != nil {
		if w.Canceled() {
			result.Status = string(StatusCanceled)
		}
		result.Error = err.Error()
		log.Error("No build host obtained", "build_id", w.BuildID,
			"platform", platform, "error", err)
		return result
	}
	result.Host = acq.Host.Hostname
	defer func() {
		if err := o.Ledger.Release(acq.Slot); err != nil {
			log.Error("Releasing build slot failed", "build_id", w.BuildID,
				"host", acq.Host.Hostname, "error", err)
		}
	}()

	input, err := o.workerInput(w, platform)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	log.Info("Dispatching worker build", "build_id", w.BuildID,
		"platform", platform, "host", acq.Host.Hostname)
	wb, err := o.Dispatcher.Dispatch(ctx, acq.Host, input)
	if err != nil {
		result.Error = errors.ErrDispatchFailed.WithCause(err).Error()
		return result
	}

	var timedOut atomic.Bool
	if o.Config.BuildTimeout > 0 {
		timer := time.AfterFunc(o.Config.BuildTimeout, func() {
			timedOut.Store(true)
			log.Warn("Worker build timed out, canceling", "build_id", w.BuildID,
				"platform", platform, "host", acq.Host.Hostname)
			if err := wb.Cancel(context.Background()); err != nil {
				log.Warn("Worker cancel failed", "build_id", w.BuildID,
					"platform", platform, "error", err)
			}
		})
		defer timer.Stop()
	}

	res, err := o.await(ctx, w, wb)
	switch {
	case err != nil:
		result.Error = err.Error()
		if w.Canceled() {
			// The job context falls together with the cancel flag, so Await
			// can return before the poll loop's cancel checkpoint fires. The
			// remote worker still needs the explicit stop, and the platform
			// is canceled, not failed.
			result.Status = string(StatusCanceled)
			if cerr := wb.Cancel(context.Background()); cerr != nil {
				log.Warn("Worker cancel failed", "build_id", w.BuildID,
					"platform", platform, "error", cerr)
			}
		}
	case timedOut.Load():
		result.Error = "worker build exceeded time limit"
	default:
		result.Status = workerStatus(res.Status)
		result.Error = res.Error
		if doc, perr := ParseDocument(res.Document); perr == nil && doc != nil {
			result.Results = doc.Results
		} else if len(res.Document) > 0 {
			log.Warn("Worker returned an unparseable document", "build_id", w.BuildID,
				"platform", platform, "error", perr)
		}
	}

	log.Info("Platform build finished", "build_id", w.BuildID, "platform", platform,
		"host", acq.Host.Hostname, "status", result.Status)
	return result
}

// acquireSlot claims a slot for the platform, retrying with exponential
// backoff while every host is busy. Contention is the only retried
// condition; ledger integrity errors and cancellation abort immediately.
func (o *OrchestratePlugin) acquireSlot(ctx context.Context, w *Workflow, platform string) (*remote.Acquired, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, o.Config.AcquireTimeout)
	defer cancel()

	var acq *remote.Acquired
	err := retry.Do(
		func() error {
			if w.Canceled() {
				return errors.ErrBuildCanceled.WithMessage("build canceled while waiting for a host")
			}
			var err error
			acq, err = o.Selector.Select(platform)
			return err
		},
		retry.Context(acquireCtx),
		retry.Attempts(0),
		retry.Delay(o.Config.AcquireDelay),
		retry.MaxDelay(o.Config.AcquireMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return goerrors.Is(err, errors.ErrNoHostAvailable)
		}),
	)
	if err != nil {
		if acquireCtx.Err() != nil {
			return nil, errors.ErrNoHostAvailable.WithMessagef(
				"no host for platform %s within %s", platform, o.Config.AcquireTimeout)
		}
		return nil, err
	}
	return acq, nil
}

// await waits for the worker build to finish while propagating parent-build
// cancellation. Cancel is requested at most once and is best effort; the
// coordinator keeps waiting for the worker's terminal state either way, so
// the slot is not released under a still-running build.
func (o *OrchestratePlugin) await(ctx context.Context, w *Workflow, wb remote.WorkerBuild) (*remote.WorkerResult, error) {
	done := make(chan struct{})
	var res *remote.WorkerResult
	var err error
	go func() {
		res, err = wb.Await(ctx)
		close(done)
	}()

	ticker := time.NewTicker(o.Config.PollInterval)
	defer ticker.Stop()

	cancelSent := false
	for {
		select {
		case <-done:
			return res, err
		case <-ticker.C:
			if w.Canceled() && !cancelSent {
				cancelSent = true
				if cerr := wb.Cancel(ctx); cerr != nil {
					log.Warn("Worker cancel failed", "build_id", w.BuildID, "error", cerr)
				}
			}
		}
	}
}

// workerInput serializes the single-platform build input handed to a worker
func (o *OrchestratePlugin) workerInput(w *Workflow, platform string) ([]byte, error) {
	params := *w.Params
	params.Platforms = []string{platform}
	input, err := json.Marshal(&params)
	if err != nil {
		return nil, errors.ErrInvalidBuildInput.WithMessage("serializing worker input").WithCause(err)
	}
	return input, nil
}

// workerStatus maps a worker's reported terminal state onto a platform
// result status; anything unrecognized counts as failed.
func workerStatus(s string) string {
	switch s {
	case remote.WorkerSucceeded:
		return string(StatusSucceeded)
	case remote.WorkerCanceled:
		return string(StatusCanceled)
	default:
		return string(StatusFailed)
	}
}
