package build

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/craterbuild/crater/src/common/errors"
)

// ============================================================================
// tag_from_config
// ============================================================================

func TestTagFromConfig_PrimaryTag(t *testing.T) {
	tests := []struct {
		name    string
		release string
		want    string
	}{
		{"with release", "2", "app:1.0-2"},
		{"without release", "", "app:1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			p.Release = tt.release
			w := NewWorkflow("b1", p)

			plugin := &TagFromConfigPlugin{}
			if _, err := plugin.Run(context.Background(), w, nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(w.TagConf.Primary) != 1 || w.TagConf.Primary[0] != tt.want {
				t.Errorf("expected primary tag %q, got %v", tt.want, w.TagConf.Primary)
			}
			if len(w.TagConf.Unique) != 1 || !strings.HasPrefix(w.TagConf.Unique[0], "app:") {
				t.Errorf("expected one unique tag for app, got %v", w.TagConf.Unique)
			}
		})
	}
}

func TestTagFromConfig_UniqueTagsDiffer(t *testing.T) {
	plugin := &TagFromConfigPlugin{}

	w1 := NewWorkflow("b1", testParams())
	w2 := NewWorkflow("b2", testParams())
	if _, err := plugin.Run(context.Background(), w1, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := plugin.Run(context.Background(), w2, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w1.TagConf.Unique[0] == w2.TagConf.Unique[0] {
		t.Errorf("unique tags must differ between builds, both %q", w1.TagConf.Unique[0])
	}
}

func TestTagFromConfig_FloatingTags(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	plugin := &TagFromConfigPlugin{}

	args := map[string]interface{}{"floating_tags": []interface{}{"latest", "stable"}}
	if _, err := plugin.Run(context.Background(), w, args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"app:latest", "app:stable"}
	if len(w.TagConf.Floating) != 2 || w.TagConf.Floating[0] != want[0] || w.TagConf.Floating[1] != want[1] {
		t.Errorf("expected floating tags %v, got %v", want, w.TagConf.Floating)
	}
}

func TestTagFromConfig_RejectsNonStringFloatingTag(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	plugin := &TagFromConfigPlugin{}

	args := map[string]interface{}{"floating_tags": []interface{}{"latest", 42}}
	if _, err := plugin.Run(context.Background(), w, args); !errors.Is(err, errors.ErrInvalidBuildInput) {
		t.Errorf("expected ErrInvalidBuildInput, got %v", err)
	}
}

// ============================================================================
// worker_build
// ============================================================================

type fakeBuilder struct {
	result interface{}
	err    error
}

func (b *fakeBuilder) Build(ctx context.Context, w *Workflow) (interface{}, error) {
	return b.result, b.err
}

func TestWorkerBuild_DelegatesToBuilder(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	plugin := &WorkerBuildPlugin{Builder: &fakeBuilder{result: "image-id"}}

	value, err := plugin.Run(context.Background(), w, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "image-id" {
		t.Errorf("expected builder result passed through, got %v", value)
	}
}

func TestWorkerBuild_MissingBuilderFails(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	plugin := &WorkerBuildPlugin{}

	if _, err := plugin.Run(context.Background(), w, nil); !errors.Is(err, errors.ErrPluginFailed) {
		t.Errorf("expected ErrPluginFailed, got %v", err)
	}
}

// ============================================================================
// fetch_worker_metadata
// ============================================================================

func TestFetchWorkerMetadata_KeyedByPlatform(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	w.AddPlatformResults(
		PlatformResult{
			Platform: "x86_64",
			Status:   string(StatusSucceeded),
			Results: map[Phase][]PluginResult{
				PhaseBuildstep: {{Plugin: "worker_build", Value: "image-amd"}},
			},
		},
		PlatformResult{Platform: "aarch64", Status: string(StatusFailed)},
	)

	plugin := &FetchWorkerMetadataPlugin{}
	value, err := plugin.Run(context.Background(), w, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	metadata, ok := value.(map[string]map[Phase][]PluginResult)
	if !ok {
		t.Fatalf("unexpected result type %T", value)
	}
	if len(metadata) != 1 {
		t.Fatalf("expected only platforms with results, got %v", metadata)
	}
	steps := metadata["x86_64"][PhaseBuildstep]
	if len(steps) != 1 || steps[0].Plugin != "worker_build" {
		t.Errorf("worker results not carried over: %v", metadata)
	}
}

// ============================================================================
// store_metadata
// ============================================================================

type memStore struct {
	key  string
	data []byte
	err  error
}

func (s *memStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.key, s.data = key, data
	return nil
}

func TestStoreMetadata_ArchivesCompressedDocument(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	if err := w.setResult(PhaseBuildstep, "builder", "image-id"); err != nil {
		t.Fatalf("setResult: %v", err)
	}

	store := &memStore{}
	plugin := &StoreMetadataPlugin{Store: store}
	value, err := plugin.Run(context.Background(), w, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKey := "builds/b1/document.json.xz"
	if value != wantKey || store.key != wantKey {
		t.Errorf("expected key %q, got %v and %q", wantKey, value, store.key)
	}

	zr, err := xz.NewReader(strings.NewReader(string(store.data)))
	if err != nil {
		t.Fatalf("opening xz stream: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("parsing archived document: %v", err)
	}
	if doc.BuildID != "b1" {
		t.Errorf("expected archived build b1, got %s", doc.BuildID)
	}
	if len(doc.Results[PhaseBuildstep]) != 1 {
		t.Errorf("archived document lost results: %v", doc.Results)
	}
}

func TestStoreMetadata_UploadFailure(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	store := &memStore{err: errors.ErrStorageUnavailable}
	plugin := &StoreMetadataPlugin{Store: store}

	if _, err := plugin.Run(context.Background(), w, nil); !errors.Is(err, errors.ErrPluginFailed) {
		t.Errorf("expected ErrPluginFailed, got %v", err)
	}
}

func TestStoreMetadata_MissingStoreFails(t *testing.T) {
	w := NewWorkflow("b1", testParams())
	plugin := &StoreMetadataPlugin{}

	if _, err := plugin.Run(context.Background(), w, nil); !errors.Is(err, errors.ErrPluginFailed) {
		t.Errorf("expected ErrPluginFailed, got %v", err)
	}
}
