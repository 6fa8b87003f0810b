package build

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

// ============================================================================
// Workflow state
// ============================================================================

func TestWorkflow_SetResultRejectsDuplicate(t *testing.T) {
	w := NewWorkflow("b1", testParams())

	if err := w.setResult(PhasePreBuild, "tagger", "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.setResult(PhasePreBuild, "tagger", "second"); err == nil {
		t.Fatal("expected duplicate result to be rejected")
	}

	value, ok := w.Result(PhasePreBuild, "tagger")
	if !ok || value != "first" {
		t.Errorf("expected original result to survive, got %v", value)
	}
}

func TestWorkflow_PhaseResultsPreserveOrder(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("plugin-%d", i)
		if err := w.setResult(PhasePostBuild, name, i); err != nil {
			t.Fatalf("setResult: %v", err)
		}
	}

	results := w.PhaseResults(PhasePostBuild)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Plugin != fmt.Sprintf("plugin-%d", i) {
			t.Errorf("result %d out of order: %s", i, r.Plugin)
		}
	}
}

func TestWorkflow_FailSummaryOrder(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	w.setError("second", fmt.Errorf("late failure"))
	w.setError("first", fmt.Errorf("early failure"))

	want := "second: late failure; first: early failure"
	if got := w.FailSummary(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWorkflow_CancelIsIdempotent(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	if w.Canceled() {
		t.Fatal("new workflow should not be canceled")
	}
	w.Cancel()
	w.Cancel()
	if !w.Canceled() {
		t.Error("expected canceled flag to be set")
	}
}

func TestWorkflow_StatusObserver(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	var seen []Status
	w.OnStatusChange(func(s Status) { seen = append(seen, s) })

	w.setStatus(StatusBuildstep)
	w.setStatus(StatusSucceeded)

	want := []Status{StatusBuildstep, StatusSucceeded}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected transitions %v, got %v", want, seen)
	}
}

// ============================================================================
// Tags and platform results
// ============================================================================

func TestTagConf_All(t *testing.T) {
	tc := TagConf{}
	tc.AddPrimary("app:1.0-2")
	tc.AddUnique("app:1.0-2.20260831")
	tc.AddFloating("app:latest")

	want := []string{"app:1.0-2", "app:1.0-2.20260831", "app:latest"}
	if got := tc.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWorkflow_PlatformResultsReturnsCopy(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	w.AddPlatformResults(
		PlatformResult{Platform: "x86_64", Host: "worker-1", Status: string(StatusSucceeded)},
		PlatformResult{Platform: "aarch64", Host: "worker-2", Status: string(StatusFailed), Error: "build broke"},
	)

	results := w.PlatformResults()
	if len(results) != 2 {
		t.Fatalf("expected 2 platform results, got %d", len(results))
	}
	results[0].Platform = "mutated"
	if w.PlatformResults()[0].Platform != "x86_64" {
		t.Error("caller mutation leaked into workflow state")
	}
}

// ============================================================================
// Document projection
// ============================================================================

func TestWorkflow_Document(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	w.TagConf.AddPrimary("app:1.0-2")
	if err := w.setResult(PhaseBuildstep, "builder", "image-id"); err != nil {
		t.Fatalf("setResult: %v", err)
	}
	w.markStarted("builder", time.Now())
	w.markElapsed("builder", 5*time.Second)
	w.setStatus(StatusSucceeded)

	doc := w.Document()
	if doc.BuildID != "b1" {
		t.Errorf("expected build id b1, got %s", doc.BuildID)
	}
	if doc.Status != StatusSucceeded {
		t.Errorf("expected status succeeded, got %s", doc.Status)
	}
	if doc.FailedMsg != "" {
		t.Errorf("successful build should not carry a fail reason, got %q", doc.FailedMsg)
	}
	if len(doc.Results[PhaseBuildstep]) != 1 || doc.Results[PhaseBuildstep][0].Plugin != "builder" {
		t.Errorf("unexpected buildstep results: %v", doc.Results[PhaseBuildstep])
	}
	if _, ok := doc.StartTimes["builder"]; !ok {
		t.Error("expected start time for builder")
	}
	if doc.Durations["builder"] != 5*time.Second {
		t.Errorf("unexpected duration: %v", doc.Durations["builder"])
	}
	if !reflect.DeepEqual(doc.TagConf.Primary, []string{"app:1.0-2"}) {
		t.Errorf("unexpected tags: %v", doc.TagConf.Primary)
	}
}

func TestWorkflow_DocumentFailReasonIsFirstError(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	w.setError("builder", fmt.Errorf("compile error"))
	w.setError("archiver", fmt.Errorf("upload error"))
	w.setStatus(StatusFailed)

	doc := w.Document()
	if doc.FailedMsg != "builder: compile error" {
		t.Errorf("expected first recorded error, got %q", doc.FailedMsg)
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	if err := w.setResult(PhaseExit, "reporter", map[string]interface{}{"stored": true}); err != nil {
		t.Fatalf("setResult: %v", err)
	}
	w.setStatus(StatusSucceeded)

	data, err := w.Document().Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.BuildID != "b1" || doc.Status != StatusSucceeded {
		t.Errorf("round trip lost identity: %s %s", doc.BuildID, doc.Status)
	}
	if len(doc.Results[PhaseExit]) != 1 {
		t.Errorf("round trip lost results: %v", doc.Results)
	}
}
