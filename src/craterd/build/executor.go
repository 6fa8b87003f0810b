package build

import (
	"context"
	"strings"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
)

// Executor runs a build's configured plugin pipeline against a workflow.
// Execution is strictly sequential: plugins within a phase, and the phases
// themselves, run one after another because later plugins read earlier
// plugins' results.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a pipeline executor over the plugin registry
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes the full pipeline: pre_build, buildstep, prepublish and
// post_build in order, then the exit phase. Any failure of a plugin not
// allowed to fail aborts the remaining non-exit phases and jumps directly
// to exit; exit plugins are the only ones guaranteed to run on every
// build. The workflow's final status is set before Run returns.
func (e *Executor) Run(ctx context.Context, w *Workflow, conf PipelineConf) error {
	var fatal error

	for _, phase := range Phases() {
		if phase == PhaseExit {
			break
		}
		if w.Canceled() {
			log.Info("Build canceled, skipping remaining phases",
				"build_id", w.BuildID, "phase", phase)
			break
		}

		w.setStatus(phaseStatus(phase))
		if err := e.runPhase(ctx, w, phase, conf[phase]); err != nil {
			log.Error("Phase failed, jumping to exit phase",
				"build_id", w.BuildID, "phase", phase, "error", err)
			fatal = err
			break
		}
	}

	// The exit phase always runs to completion: its plugins perform
	// cleanup and reporting and must see failed and canceled builds too.
	w.setStatus(StatusExit)
	exitErr := e.runExitPhase(ctx, w, conf[PhaseExit])
	if exitErr != nil {
		log.Error("One or more exit plugins failed", "build_id", w.BuildID, "error", exitErr)
	}

	switch {
	case w.Canceled():
		w.setStatus(StatusCanceled)
	case fatal != nil || exitErr != nil:
		w.setStatus(StatusFailed)
	default:
		w.setStatus(StatusSucceeded)
	}

	if fatal != nil {
		return fatal
	}
	return exitErr
}

// runPhase executes one non-exit phase's plugin list in configured order.
// The buildstep phase additionally stops after the first plugin that
// produces a result: exactly one buildstep plugin performs the build.
func (e *Executor) runPhase(ctx context.Context, w *Workflow, phase Phase, confs []PluginConf) error {
	for _, pc := range confs {
		if w.Canceled() {
			return nil
		}

		ran, err := e.runPlugin(ctx, w, phase, pc)
		if err != nil {
			if pc.Policy() != PolicyMandatory {
				log.Warn("Plugin failed but is allowed to fail, continuing",
					"build_id", w.BuildID, "phase", phase, "plugin", pc.Name, "error", err)
				continue
			}
			return errors.ErrPluginFailed.WithMessagef(
				"plugin %s failed in phase %s", pc.Name, phase).WithCause(err)
		}

		if ran && phase == PhaseBuildstep {
			log.Debug("Buildstep complete, skipping remaining buildstep plugins",
				"build_id", w.BuildID, "plugin", pc.Name)
			return nil
		}
	}
	return nil
}

// runExitPhase executes the exit phase with keep-going semantics: an error
// raised by one exit plugin never prevents subsequent exit plugins from
// running. Failures of plugins not allowed to fail are aggregated into the
// returned error.
func (e *Executor) runExitPhase(ctx context.Context, w *Workflow, confs []PluginConf) error {
	var failed []string
	for _, pc := range confs {
		if _, err := e.runPlugin(ctx, w, PhaseExit, pc); err != nil {
			if pc.Policy() != PolicyMandatory {
				log.Warn("Exit plugin failed but is allowed to fail",
					"build_id", w.BuildID, "plugin", pc.Name, "error", err)
				continue
			}
			failed = append(failed, pc.Name+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.ErrPluginFailed.WithMessagef(
			"exit plugins failed: %s", strings.Join(failed, "; "))
	}
	return nil
}

// runPlugin resolves and runs one configured plugin, recording its start
// time, duration and result or error on the workflow. The returned bool
// reports whether the plugin actually ran (an unresolvable optional plugin
// is a no-op).
func (e *Executor) runPlugin(ctx context.Context, w *Workflow, phase Phase, pc PluginConf) (bool, error) {
	plugin, err := e.registry.Resolve(pc.Name)
	if err != nil {
		if pc.Policy() == PolicyOptionalSilent {
			log.Warn("Plugin requested but not available, skipping",
				"build_id", w.BuildID, "phase", phase, "plugin", pc.Name)
			return false, nil
		}
		w.setError(pc.Name, err)
		return false, err
	}

	log.Debug("Running plugin", "build_id", w.BuildID, "phase", phase, "plugin", pc.Name)
	start := time.Now()
	w.markStarted(pc.Name, start)

	value, runErr := plugin.Run(ctx, w, pc.Args)
	w.markElapsed(pc.Name, time.Since(start))

	if runErr != nil {
		w.setError(pc.Name, runErr)
		return true, runErr
	}

	if err := w.setResult(phase, pc.Name, value); err != nil {
		// A duplicate result means the executor itself is broken; surface
		// it as a plugin failure so it is never swallowed.
		w.setError(pc.Name, err)
		return true, err
	}

	log.Debug("Plugin finished", "build_id", w.BuildID, "plugin", pc.Name,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return true, nil
}
