package build

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/craterbuild/crater/src/craterd/db"
)

// Worker processes build jobs from the queue
type Worker struct {
	id      int
	manager *Manager
	jobChan <-chan *db.BuildJob
}

// newWorker creates a new build worker
func newWorker(id int, manager *Manager, jobChan <-chan *db.BuildJob) *Worker {
	return &Worker{
		id:      id,
		manager: manager,
		jobChan: jobChan,
	}
}

// Run starts the worker loop
func (w *Worker) Run(ctx context.Context) {
	log.Debug("Build worker started", "worker_id", w.id)
	defer log.Debug("Build worker stopped", "worker_id", w.id)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobChan:
			if !ok {
				return
			}
			w.processJob(ctx, job)
		}
	}
}

// processJob runs a single build job's full plugin pipeline
func (w *Worker) processJob(ctx context.Context, job *db.BuildJob) {
	// Recover from panics so the worker goroutine survives and the build
	// job gets marked as failed instead of hanging forever.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Build worker recovered from panic",
				"worker_id", w.id,
				"build_id", job.ID,
				"panic", fmt.Sprintf("%v", r),
			)
			w.handleFailure(job, fmt.Sprintf("internal error (panic): %v", r), "")
		}
	}()

	// A job can be fetched by the dispatcher after it was already picked
	// up or cancelled; re-check current state before doing anything.
	current, err := w.manager.buildJobRepo.GetByID(job.ID)
	if err != nil || current == nil || current.Status != db.BuildStatusPending {
		return
	}

	log.Info("Processing build job",
		"worker_id", w.id,
		"build_id", job.ID,
		"component", job.Component,
		"platforms", job.Platforms,
	)

	var params Params
	if err := json.Unmarshal([]byte(job.ParamsSnapshot), &params); err != nil {
		w.handleFailure(job, fmt.Sprintf("failed to parse build input snapshot: %v", err), "")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workflow := NewWorkflow(job.ID, &params)
	workflow.OnStatusChange(func(s Status) {
		if s.Terminal() {
			return
		}
		if err := w.manager.buildJobRepo.UpdatePhase(job.ID, string(s)); err != nil {
			log.Warn("Failed to update build phase", "build_id", job.ID, "error", err)
		}
		if err := w.manager.buildJobRepo.AppendLog(job.ID, string(s), "info",
			"entering phase "+string(s)); err != nil {
			log.Warn("Failed to append build log", "build_id", job.ID, "error", err)
		}
	})

	w.manager.registerBuild(job.ID, workflow, cancel)
	defer w.manager.unregisterBuild(job.ID)

	if err := w.manager.buildJobRepo.MarkStarted(job.ID); err != nil {
		log.Error("Failed to mark build started", "build_id", job.ID, "error", err)
		return
	}

	// Context cancellation from manager shutdown translates into the
	// workflow's cooperative cancellation flag.
	pipelineDone := make(chan struct{})
	go func() {
		select {
		case <-jobCtx.Done():
			workflow.Cancel()
		case <-pipelineDone:
		}
	}()

	pipelineErr := w.manager.executor.Run(jobCtx, workflow, w.manager.pipeline)
	close(pipelineDone)

	documentKey := w.documentKey(workflow)
	switch workflow.Status() {
	case StatusSucceeded:
		log.Info("Build completed successfully",
			"worker_id", w.id, "build_id", job.ID, "document_key", documentKey)
		if err := w.manager.buildJobRepo.MarkCompleted(job.ID, documentKey); err != nil {
			log.Error("Failed to mark build completed", "build_id", job.ID, "error", err)
		}
	case StatusCanceled:
		log.Info("Build canceled", "worker_id", w.id, "build_id", job.ID)
		if err := w.manager.buildJobRepo.MarkCancelled(job.ID, documentKey); err != nil {
			log.Error("Failed to mark build cancelled", "build_id", job.ID, "error", err)
		}
	default:
		msg := workflow.FailSummary()
		if msg == "" && pipelineErr != nil {
			msg = pipelineErr.Error()
		}
		log.Error("Build failed", "worker_id", w.id, "build_id", job.ID, "error", msg)
		if err := w.manager.buildJobRepo.MarkFailed(job.ID, msg, documentKey); err != nil {
			log.Error("Failed to mark build failed", "build_id", job.ID, "error", err)
		}
	}
}

// documentKey extracts the archived document's storage key recorded by the
// exit phase, when archiving ran and succeeded
func (w *Worker) documentKey(workflow *Workflow) string {
	value, ok := workflow.Result(PhaseExit, "store_metadata")
	if !ok {
		return ""
	}
	key, _ := value.(string)
	return key
}

// handleFailure marks a build job as failed
func (w *Worker) handleFailure(job *db.BuildJob, errorMsg, documentKey string) {
	log.Error("Build job failed",
		"worker_id", w.id,
		"build_id", job.ID,
		"error", errorMsg,
	)

	if err := w.manager.buildJobRepo.MarkFailed(job.ID, errorMsg, documentKey); err != nil {
		log.Error("Failed to mark build as failed", "build_id", job.ID, "error", err)
	}
}
