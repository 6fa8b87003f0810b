package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/craterbuild/crater/src/common/errors"
)

// ImageBuilder performs the actual image build on a worker. The pipeline
// core never talks to a container engine directly; worker deployments
// plug their engine in through this interface.
type ImageBuilder interface {
	Build(ctx context.Context, w *Workflow) (interface{}, error)
}

// ArchiveStore persists serialized build documents. Satisfied by the
// storage backends.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// TagFromConfigPlugin derives the image tag set from the build input:
// the primary tag from component, version and release, a unique tag for
// this particular build, and any configured floating tags.
type TagFromConfigPlugin struct{}

func (p *TagFromConfigPlugin) Key() string  { return "tag_from_config" }
func (p *TagFromConfigPlugin) Phase() Phase { return PhasePreBuild }

func (p *TagFromConfigPlugin) Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error) {
	params := w.Params

	primary := params.Component + ":" + params.Version
	if params.Release != "" {
		primary += "-" + params.Release
	}
	w.TagConf.AddPrimary(primary)

	// The unique tag disambiguates rebuilds of the same version-release
	unique := fmt.Sprintf("%s:%s-%s", params.Component,
		time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
	w.TagConf.AddUnique(unique)

	if raw, ok := args["floating_tags"].([]interface{}); ok {
		for _, entry := range raw {
			tag, ok := entry.(string)
			if !ok {
				return nil, errors.ErrInvalidBuildInput.WithMessagef(
					"floating_tags entries must be strings, got %T", entry)
			}
			w.TagConf.AddFloating(params.Component + ":" + tag)
		}
	}

	log.Info("Resolved image tags", "build_id", w.BuildID,
		"primary", primary, "unique", unique, "floating", len(w.TagConf.Floating))
	return w.TagConf.All(), nil
}

// WorkerBuildPlugin is the worker-side buildstep: it hands the workflow to
// the deployment's image builder and records what came back. It is the
// counterpart of the orchestration buildstep that runs on the coordinating
// node.
type WorkerBuildPlugin struct {
	Builder ImageBuilder
}

func (p *WorkerBuildPlugin) Key() string  { return "worker_build" }
func (p *WorkerBuildPlugin) Phase() Phase { return PhaseBuildstep }

func (p *WorkerBuildPlugin) Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error) {
	if p.Builder == nil {
		return nil, errors.ErrPluginFailed.WithMessage("no image builder configured")
	}
	log.Info("Starting image build", "build_id", w.BuildID, "source", w.Params.Source.URI)
	result, err := p.Builder.Build(ctx, w)
	if err != nil {
		return nil, errors.ErrPluginFailed.WithMessage("image build failed").WithCause(err)
	}
	return result, nil
}

// FetchWorkerMetadataPlugin collects the per-platform worker documents
// gathered by the orchestration buildstep into a single map keyed by
// platform, so later plugins and the archived document see every worker's
// plugin results in one place.
type FetchWorkerMetadataPlugin struct{}

func (p *FetchWorkerMetadataPlugin) Key() string  { return "fetch_worker_metadata" }
func (p *FetchWorkerMetadataPlugin) Phase() Phase { return PhasePostBuild }

func (p *FetchWorkerMetadataPlugin) Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error) {
	metadata := make(map[string]map[Phase][]PluginResult)
	for _, pr := range w.PlatformResults() {
		if pr.Results == nil {
			continue
		}
		metadata[pr.Platform] = pr.Results
	}
	if len(metadata) == 0 {
		log.Warn("No worker metadata available", "build_id", w.BuildID)
	}
	return metadata, nil
}

// StoreMetadataPlugin archives the build's serialized document. It runs in
// the exit phase so failed and canceled builds are archived too; the
// document it stores reflects everything recorded up to that point.
type StoreMetadataPlugin struct {
	Store ArchiveStore
}

func (p *StoreMetadataPlugin) Key() string  { return "store_metadata" }
func (p *StoreMetadataPlugin) Phase() Phase { return PhaseExit }

func (p *StoreMetadataPlugin) Run(ctx context.Context, w *Workflow, args map[string]interface{}) (interface{}, error) {
	if p.Store == nil {
		return nil, errors.ErrPluginFailed.WithMessage("no archive store configured")
	}

	data, err := w.Document().Marshal()
	if err != nil {
		return nil, errors.ErrPluginFailed.WithMessage("serializing build document").WithCause(err)
	}

	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.ErrPluginFailed.WithMessage("creating xz writer").WithCause(err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.ErrPluginFailed.WithMessage("compressing build document").WithCause(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.ErrPluginFailed.WithMessage("compressing build document").WithCause(err)
	}

	key := "builds/" + w.BuildID + "/document.json.xz"
	if err := p.Store.Upload(ctx, key, &buf, int64(buf.Len()), "application/x-xz"); err != nil {
		return nil, errors.ErrPluginFailed.WithMessagef("archiving build document to %s", key).WithCause(err)
	}

	log.Info("Archived build document", "build_id", w.BuildID, "key", key,
		"raw_bytes", len(data), "compressed_bytes", buf.Len())
	return key, nil
}
