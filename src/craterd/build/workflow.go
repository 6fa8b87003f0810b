package build

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TagConf holds the image names and tags to be applied to a build's output:
// primary tags are predictable, unique tags are per-build tracking names,
// floating tags move between builds (e.g. "latest").
type TagConf struct {
	Primary  []string `json:"primary,omitempty"`
	Unique   []string `json:"unique,omitempty"`
	Floating []string `json:"floating,omitempty"`
}

// All returns every configured tag
func (t *TagConf) All() []string {
	all := make([]string, 0, len(t.Primary)+len(t.Unique)+len(t.Floating))
	all = append(all, t.Primary...)
	all = append(all, t.Unique...)
	all = append(all, t.Floating...)
	return all
}

// AddPrimary appends a primary tag
func (t *TagConf) AddPrimary(tag string) { t.Primary = append(t.Primary, tag) }

// AddUnique appends a unique tag
func (t *TagConf) AddUnique(tag string) { t.Unique = append(t.Unique, tag) }

// AddFloating appends a floating tag
func (t *TagConf) AddFloating(tag string) { t.Floating = append(t.Floating, tag) }

// ParentImage is one parent image reference from the build's Dockerfile and
// its resolution state. References keep their declaration order.
type ParentImage struct {
	Reference string `json:"reference"`
	LocalTag  string `json:"local_tag,omitempty"`
	Resolved  bool   `json:"resolved"`
}

// PluginResult is one plugin's stored output within a phase
type PluginResult struct {
	Plugin string      `json:"plugin"`
	Value  interface{} `json:"value,omitempty"`
}

// PlatformResult is the finalized outcome of one per-platform worker build.
// It is owned by the coordinator until merged into the parent workflow,
// after which it is immutable.
type PlatformResult struct {
	Platform string `json:"platform"`
	Host     string `json:"host,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`

	// Results is the worker's per-plugin result subset, preserved for
	// failed and canceled workers as well as successful ones
	Results map[Phase][]PluginResult `json:"results,omitempty"`
}

// Workflow is the single mutable record threaded through one build: plugin
// results per phase, errors, timing, tags, parent images and cancellation.
// It is created at build start, mutated only by the pipeline executor and
// the plugins it invokes, and archived when the exit phase completes. A
// workflow never crosses a process boundary; only its serialized Document
// does.
type Workflow struct {
	BuildID string
	Params  *Params

	mu       sync.Mutex
	status   Status
	results  map[Phase][]PluginResult
	errors   map[string]string
	errOrder []string
	started  map[string]time.Time
	elapsed  map[string]time.Duration

	canceled atomic.Bool

	// onStatus, when set, observes every status transition. Used by the
	// manager to persist phase progress; never blocks the pipeline for long.
	onStatus func(Status)

	TagConf      TagConf
	ParentImages []ParentImage

	platformResults []PlatformResult
}

// NewWorkflow creates the workflow record for one build
func NewWorkflow(buildID string, params *Params) *Workflow {
	return &Workflow{
		BuildID: buildID,
		Params:  params,
		status:  StatusPending,
		results: make(map[Phase][]PluginResult),
		errors:  make(map[string]string),
		started: make(map[string]time.Time),
		elapsed: make(map[string]time.Duration),
	}
}

// Status returns the build's current status
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Workflow) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	notify := w.onStatus
	w.mu.Unlock()
	if notify != nil {
		notify(s)
	}
}

// OnStatusChange registers an observer for status transitions. Must be set
// before the pipeline starts.
func (w *Workflow) OnStatusChange(fn func(Status)) {
	w.mu.Lock()
	w.onStatus = fn
	w.mu.Unlock()
}

// Cancel sets the cancellation flag. The flag is observed at well-defined
// checkpoints; it never interrupts an in-progress plugin invocation.
// Safe to call from any goroutine.
func (w *Workflow) Cancel() {
	if w.canceled.CompareAndSwap(false, true) {
		log.Info("Build cancellation requested", "build_id", w.BuildID)
	}
}

// Canceled reports whether cancellation has been requested
func (w *Workflow) Canceled() bool {
	return w.canceled.Load()
}

// setResult stores a plugin's result under its phase. Results are
// append-only: a second store for the same plugin is an executor defect.
func (w *Workflow) setResult(phase Phase, plugin string, value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.results[phase] {
		if r.Plugin == plugin {
			return fmt.Errorf("plugin %s already has a result in phase %s", plugin, phase)
		}
	}
	w.results[phase] = append(w.results[phase], PluginResult{Plugin: plugin, Value: value})
	return nil
}

// Result returns the stored result for a plugin in a phase
func (w *Workflow) Result(phase Phase, plugin string) (interface{}, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.results[phase] {
		if r.Plugin == plugin {
			return r.Value, true
		}
	}
	return nil, false
}

// PhaseResults returns the ordered results of one phase
func (w *Workflow) PhaseResults(phase Phase) []PluginResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]PluginResult(nil), w.results[phase]...)
}

// setError records a plugin failure. Failures are always recorded, even
// for plugins that are allowed to fail.
func (w *Workflow) setError(plugin string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.errors[plugin]; !ok {
		w.errOrder = append(w.errOrder, plugin)
	}
	w.errors[plugin] = err.Error()
}

// Errors returns a copy of the per-plugin error details
func (w *Workflow) Errors() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.errors))
	for k, v := range w.errors {
		out[k] = v
	}
	return out
}

// PluginError returns the recorded error detail for a plugin, if any
func (w *Workflow) PluginError(plugin string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	detail, ok := w.errors[plugin]
	return detail, ok
}

// markStarted records a plugin's start timestamp
func (w *Workflow) markStarted(plugin string, at time.Time) {
	w.mu.Lock()
	w.started[plugin] = at
	w.mu.Unlock()
}

// markElapsed records a plugin's run duration
func (w *Workflow) markElapsed(plugin string, d time.Duration) {
	w.mu.Lock()
	w.elapsed[plugin] = d
	w.mu.Unlock()
}

// AddPlatformResults merges finalized per-platform results into the
// workflow. All results are preserved, including failed and canceled ones,
// so exit-phase plugins can report on every platform.
func (w *Workflow) AddPlatformResults(results ...PlatformResult) {
	w.mu.Lock()
	w.platformResults = append(w.platformResults, results...)
	w.mu.Unlock()
}

// PlatformResults returns the merged per-platform results
func (w *Workflow) PlatformResults() []PlatformResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]PlatformResult(nil), w.platformResults...)
}

// FailSummary renders the recorded plugin errors as a single line, in the
// order the failures occurred
func (w *Workflow) FailSummary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := make([]string, 0, len(w.errOrder))
	for _, plugin := range w.errOrder {
		parts = append(parts, fmt.Sprintf("%s: %s", plugin, w.errors[plugin]))
	}
	return strings.Join(parts, "; ")
}
