package build

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/remote"
)

func workerInput(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(testParams())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func workerPipeline() PipelineConf {
	return PipelineConf{
		PhaseBuildstep: {{Name: "worker_build"}},
	}
}

func workerRegistry(t *testing.T, builder ImageBuilder) *Registry {
	t.Helper()
	registry := NewRegistry()
	registry.Register(&WorkerBuildPlugin{Builder: builder})
	return registry
}

func TestStandaloneBuild_RejectsBadInput(t *testing.T) {
	registry := workerRegistry(t, &fakeBuilder{})

	if _, err := NewStandaloneBuild("b1", []byte("not json"), registry, workerPipeline()); !errors.Is(err, errors.ErrInvalidBuildInput) {
		t.Errorf("expected ErrInvalidBuildInput for malformed input, got %v", err)
	}

	if _, err := NewStandaloneBuild("b1", []byte("{}"), registry, workerPipeline()); !errors.Is(err, errors.ErrInvalidBuildInput) {
		t.Errorf("expected ErrInvalidBuildInput for empty document, got %v", err)
	}
}

func TestStandaloneBuild_RejectsUnresolvablePipeline(t *testing.T) {
	registry := NewRegistry()
	pipeline := PipelineConf{PhaseBuildstep: {{Name: "worker_build"}}}

	if _, err := NewStandaloneBuild("b1", workerInput(t), registry, pipeline); !errors.Is(err, errors.ErrMissingRequiredPlugin) {
		t.Errorf("expected ErrMissingRequiredPlugin, got %v", err)
	}
}

func TestStandaloneBuild_SuccessCarriesDocument(t *testing.T) {
	registry := workerRegistry(t, &fakeBuilder{result: "image-id"})
	standalone, err := NewStandaloneBuild("b1", workerInput(t), registry, workerPipeline())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := standalone.Run(context.Background())
	if result.Status != remote.WorkerSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
	}

	doc, err := ParseDocument(result.Document)
	if err != nil {
		t.Fatalf("parsing result document: %v", err)
	}
	if doc.BuildID != "b1" || doc.Status != StatusSucceeded {
		t.Errorf("unexpected document state: %s %s", doc.BuildID, doc.Status)
	}
	steps := doc.Results[PhaseBuildstep]
	if len(steps) != 1 || steps[0].Plugin != "worker_build" || steps[0].Value != "image-id" {
		t.Errorf("builder result not recorded: %v", steps)
	}
}

func TestStandaloneBuild_FailureCarriesDiagnostics(t *testing.T) {
	registry := workerRegistry(t, &fakeBuilder{err: errors.ErrPluginFailed.WithMessage("compile error")})
	standalone, err := NewStandaloneBuild("b1", workerInput(t), registry, workerPipeline())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := standalone.Run(context.Background())
	if result.Status != remote.WorkerFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error == "" {
		t.Error("expected failure detail in result")
	}

	// Failed builds still hand their document back for diagnostics
	doc, err := ParseDocument(result.Document)
	if err != nil {
		t.Fatalf("parsing result document: %v", err)
	}
	if doc.Status != StatusFailed {
		t.Errorf("expected failed document, got %s", doc.Status)
	}
	if _, ok := doc.Errors["worker_build"]; !ok {
		t.Errorf("expected recorded plugin error, got %v", doc.Errors)
	}
}

func TestStandaloneBuild_CancelBeforeRun(t *testing.T) {
	registry := workerRegistry(t, &fakeBuilder{result: "image-id"})
	standalone, err := NewStandaloneBuild("b1", workerInput(t), registry, workerPipeline())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	standalone.Cancel()
	result := standalone.Run(context.Background())
	if result.Status != remote.WorkerCanceled {
		t.Errorf("expected canceled, got %s", result.Status)
	}
}
