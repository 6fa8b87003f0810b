package build

import (
	"context"

	"github.com/craterbuild/crater/src/common/errors"
)

// Plugin is one named unit of work executed within a phase. Plugins receive
// the workflow explicitly; there is no ambient build state.
type Plugin interface {
	// Key returns the plugin's configuration name
	Key() string

	// Phase returns the phase the plugin is declared for
	Phase() Phase

	// Run executes the plugin against the workflow with its configured
	// arguments and returns the value to store as its result
	Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error)
}

// FailurePolicy captures the three observed combinations of the `required`
// and `is_allowed_to_fail` plugin configuration flags
type FailurePolicy int

const (
	// PolicyMandatory: the plugin must resolve and must succeed; a failure
	// short-circuits the pipeline into the exit phase
	PolicyMandatory FailurePolicy = iota

	// PolicyOptionalLoud: the plugin must resolve, but a runtime failure is
	// recorded and the phase continues
	PolicyOptionalLoud

	// PolicyOptionalSilent: an unresolvable plugin is skipped without an
	// error; a runtime failure is still recorded but tolerated
	PolicyOptionalSilent
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyMandatory:
		return "mandatory"
	case PolicyOptionalLoud:
		return "optional_loud"
	case PolicyOptionalSilent:
		return "optional_silent"
	}
	return "unknown"
}

// PluginConf is one entry of the externally supplied plugin configuration:
// the pipeline's sole control surface. Ordering within a phase is the
// configured list order and is significant.
type PluginConf struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`

	// Required defaults to true: an unresolvable required plugin is a
	// configuration error detected before the pipeline starts
	Required *bool `json:"required,omitempty"`

	// AllowedToFail defaults to false: a runtime failure of a plugin not
	// allowed to fail aborts the remaining pipeline
	AllowedToFail *bool `json:"is_allowed_to_fail,omitempty"`
}

// IsRequired resolves the Required flag's default
func (c PluginConf) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// IsAllowedToFail resolves the AllowedToFail flag's default
func (c PluginConf) IsAllowedToFail() bool {
	return c.AllowedToFail != nil && *c.AllowedToFail
}

// Policy derives the failure policy from the two configuration flags
func (c PluginConf) Policy() FailurePolicy {
	if !c.IsRequired() {
		return PolicyOptionalSilent
	}
	if c.IsAllowedToFail() {
		return PolicyOptionalLoud
	}
	return PolicyMandatory
}

// PipelineConf is the per-build plugin configuration: an ordered plugin
// list per phase
type PipelineConf map[Phase][]PluginConf

// Registry is the static catalog mapping a plugin name to its executable
// unit. New plugin kinds are added by registering a new variant; there is
// no runtime type inspection.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin variant to the catalog. Registering the same key
// twice replaces the earlier variant.
func (r *Registry) Register(p Plugin) {
	r.plugins[p.Key()] = p
}

// Resolve looks up a plugin by name
func (r *Registry) Resolve(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, errors.ErrUnknownPlugin.WithMessagef("no such plugin: %s", name)
	}
	return p, nil
}

// Validate statically checks a pipeline configuration before any build work
// begins: required plugins must resolve, resolved plugins must be declared
// for the configured phase, and no plugin name may appear twice in a build
// (each plugin runs at most once per build).
func (r *Registry) Validate(conf PipelineConf) error {
	seen := make(map[string]bool)
	for _, phase := range Phases() {
		for _, pc := range conf[phase] {
			if seen[pc.Name] {
				return errors.ErrDuplicatePlugin.WithMessagef(
					"plugin %s configured more than once", pc.Name)
			}
			seen[pc.Name] = true

			p, err := r.Resolve(pc.Name)
			if err != nil {
				if pc.IsRequired() {
					return errors.ErrMissingRequiredPlugin.WithMessagef(
						"required plugin %s is not available", pc.Name).WithCause(err)
				}
				continue
			}
			if p.Phase() != phase {
				return errors.ErrUnknownPlugin.WithMessagef(
					"plugin %s is a %s plugin, configured under %s", pc.Name, p.Phase(), phase)
			}
		}
	}

	for phase := range conf {
		if !phase.Valid() {
			return errors.ErrInvalidBuildInput.WithMessagef("unknown phase: %s", phase)
		}
	}
	return nil
}
