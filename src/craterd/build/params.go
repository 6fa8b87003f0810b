package build

import (
	"regexp"
	"strings"

	"github.com/craterbuild/crater/src/common/errors"
)

var (
	componentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	platformPattern  = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// SourceSpec points at the source the build consumes. Retrieval itself is
// an external collaborator; the core only carries the reference.
type SourceSpec struct {
	URI string `json:"uri"`
	Ref string `json:"ref,omitempty"`
}

// Params is the build input document: build identity, target platforms and
// tag components. It is validated before the pipeline starts; a malformed
// document is rejected before any slot is acquired or any plugin runs.
type Params struct {
	Source    SourceSpec `json:"source"`
	Platforms []string   `json:"platforms"`

	// Component, Version and Release are the image tag components
	Component string `json:"component"`
	Version   string `json:"version"`
	Release   string `json:"release,omitempty"`

	// Scratch builds are throwaway: their results are not promoted
	Scratch bool `json:"scratch,omitempty"`

	// Isolated builds run outside the normal release stream
	Isolated bool `json:"isolated,omitempty"`

	User string `json:"user,omitempty"`
}

// Validate checks the input document against its schema. Every violation is
// reported as a configuration error; nothing is normalized silently.
func (p *Params) Validate() error {
	var problems []string

	if p.Source.URI == "" {
		problems = append(problems, "source.uri is required")
	}
	if len(p.Platforms) == 0 {
		problems = append(problems, "at least one platform is required")
	}
	seen := make(map[string]bool, len(p.Platforms))
	for _, platform := range p.Platforms {
		if !platformPattern.MatchString(platform) {
			problems = append(problems, "invalid platform name: "+platform)
			continue
		}
		if seen[platform] {
			problems = append(problems, "platform listed twice: "+platform)
		}
		seen[platform] = true
	}
	if p.Component == "" {
		problems = append(problems, "component is required")
	} else if !componentPattern.MatchString(p.Component) {
		problems = append(problems, "invalid component name: "+p.Component)
	}
	if p.Version == "" {
		problems = append(problems, "version is required")
	}
	if p.Scratch && p.Isolated {
		problems = append(problems, "scratch and isolated are mutually exclusive")
	}

	if len(problems) > 0 {
		return errors.ErrInvalidBuildInput.WithMessage(strings.Join(problems, "; "))
	}
	return nil
}
