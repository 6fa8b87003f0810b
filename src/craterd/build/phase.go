// Package build provides the build-workflow orchestration engine: the
// multi-phase plugin pipeline executor and the multi-platform coordinator
// that fans worker builds out onto a capacity-constrained host pool.
package build

import (
	"github.com/craterbuild/crater/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the build package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Phase is one of the five ordered stages a build's plugins are grouped into
type Phase string

const (
	PhasePreBuild   Phase = "pre_build"
	PhaseBuildstep  Phase = "buildstep"
	PhasePrePublish Phase = "prepublish"
	PhasePostBuild  Phase = "post_build"
	PhaseExit       Phase = "exit"
)

// Phases returns all phases in execution order. The exit phase is last and
// is the only phase guaranteed to run on every build.
func Phases() []Phase {
	return []Phase{PhasePreBuild, PhaseBuildstep, PhasePrePublish, PhasePostBuild, PhaseExit}
}

// Valid reports whether p names a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhasePreBuild, PhaseBuildstep, PhasePrePublish, PhasePostBuild, PhaseExit:
		return true
	}
	return false
}

// Status is the overall state of one build
type Status string

const (
	StatusPending    Status = "pending"
	StatusPreBuild   Status = "pre_build"
	StatusBuildstep  Status = "buildstep"
	StatusPrePublish Status = "prepublish"
	StatusPostBuild  Status = "post_build"
	StatusExit       Status = "exit"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether s is a terminal build status
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// phaseStatus maps a phase to the running status a build shows while
// executing it
func phaseStatus(p Phase) Status {
	switch p {
	case PhasePreBuild:
		return StatusPreBuild
	case PhaseBuildstep:
		return StatusBuildstep
	case PhasePrePublish:
		return StatusPrePublish
	case PhasePostBuild:
		return StatusPostBuild
	case PhaseExit:
		return StatusExit
	}
	return StatusPending
}
