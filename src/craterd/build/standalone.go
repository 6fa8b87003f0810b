package build

import (
	"context"
	"encoding/json"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/remote"
)

// StandaloneBuild runs one single-platform build pipeline in worker mode:
// input arrives as a serialized build document on stdin and the terminal
// state leaves as the last stdout line, which is how a coordinating node
// drives this process over SSH.
type StandaloneBuild struct {
	registry *Registry
	pipeline PipelineConf
	workflow *Workflow
}

// NewStandaloneBuild parses and validates the serialized build input and
// prepares a worker-mode pipeline for it
func NewStandaloneBuild(buildID string, input []byte, registry *Registry, pipeline PipelineConf) (*StandaloneBuild, error) {
	var params Params
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, errors.ErrInvalidBuildInput.WithMessage("parsing build input").WithCause(err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := registry.Validate(pipeline); err != nil {
		return nil, err
	}

	return &StandaloneBuild{
		registry: registry,
		pipeline: pipeline,
		workflow: NewWorkflow(buildID, &params),
	}, nil
}

// Cancel requests cooperative cancellation, typically wired to SIGTERM
func (s *StandaloneBuild) Cancel() {
	s.workflow.Cancel()
}

// Workflow exposes the underlying workflow record
func (s *StandaloneBuild) Workflow() *Workflow {
	return s.workflow
}

// Run executes the pipeline and renders the terminal state as a worker
// result. The result always carries the serialized document, so the
// coordinator sees partial plugin results from failed and canceled builds.
func (s *StandaloneBuild) Run(ctx context.Context) *remote.WorkerResult {
	err := NewExecutor(s.registry).Run(ctx, s.workflow, s.pipeline)

	result := &remote.WorkerResult{}
	switch s.workflow.Status() {
	case StatusSucceeded:
		result.Status = remote.WorkerSucceeded
	case StatusCanceled:
		result.Status = remote.WorkerCanceled
		result.Error = "build canceled"
	default:
		result.Status = remote.WorkerFailed
		result.Error = s.workflow.FailSummary()
		if result.Error == "" && err != nil {
			result.Error = err.Error()
		}
	}

	doc, marshalErr := s.workflow.Document().Marshal()
	if marshalErr != nil {
		log.Error("Failed to serialize workflow document", "build_id", s.workflow.BuildID,
			"error", marshalErr)
	} else {
		result.Document = doc
	}

	return result
}
