package build

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/db"
	"github.com/craterbuild/crater/src/craterd/storage"
)

// Config holds configuration for the build manager
type Config struct {
	Workers      int           // Number of concurrent build pipelines
	QueueSize    int           // Pending job queue depth
	PollInterval time.Duration // How often pending jobs are picked up
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		QueueSize:    16,
		PollInterval: 10 * time.Second,
	}
}

// Manager coordinates build jobs across pipeline workers. Each worker runs
// one build's full plugin pipeline at a time; jobs are picked up from the
// database so submissions survive a restart.
type Manager struct {
	db           *db.Database
	storage      storage.Backend
	buildJobRepo *db.BuildJobRepository
	registry     *Registry
	executor     *Executor
	pipeline     PipelineConf
	config       Config

	jobQueue    chan *db.BuildJob
	cancelFuncs map[string]context.CancelFunc
	workflows   map[string]*Workflow
	mu          sync.RWMutex
	wg          sync.WaitGroup

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates a new build manager
func NewManager(database *db.Database, storageBackend storage.Backend,
	registry *Registry, pipeline PipelineConf, cfg Config) *Manager {

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	return &Manager{
		db:           database,
		storage:      storageBackend,
		buildJobRepo: db.NewBuildJobRepository(database),
		registry:     registry,
		executor:     NewExecutor(registry),
		pipeline:     pipeline,
		config:       cfg,
		jobQueue:     make(chan *db.BuildJob, cfg.QueueSize),
		cancelFuncs:  make(map[string]context.CancelFunc),
		workflows:    make(map[string]*Workflow),
	}
}

// Start begins processing build jobs
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New(errors.DomainBuild, "manager_running", 500,
			"build manager already running")
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	// Pipeline configuration errors surface at startup, not per-build
	if err := m.registry.Validate(m.pipeline); err != nil {
		return err
	}

	log.Info("Build manager starting", "workers", m.config.Workers)

	for i := 0; i < m.config.Workers; i++ {
		worker := newWorker(i, m, m.jobQueue)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			worker.Run(m.ctx)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatcher()
	}()

	log.Info("Build manager started")
	return nil
}

// Stop gracefully stops the build manager
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	log.Info("Build manager stopping")

	m.cancel()
	close(m.jobQueue)
	m.wg.Wait()

	log.Info("Build manager stopped")
	return nil
}

// dispatcher polls for pending jobs and dispatches them to workers
func (m *Manager) dispatcher() {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.dispatchPendingJobs()
		}
	}
}

// dispatchPendingJobs fetches and dispatches pending build jobs
func (m *Manager) dispatchPendingJobs() {
	jobs, err := m.buildJobRepo.ListPending()
	if err != nil {
		log.Error("Failed to list pending build jobs", "error", err)
		return
	}

	for _, job := range jobs {
		j := job
		select {
		case <-m.ctx.Done():
			return
		case m.jobQueue <- &j:
			log.Debug("Dispatched build job", "build_id", j.ID)
		default:
			log.Debug("Build job queue full, will retry", "build_id", j.ID)
			return
		}
	}
}

// SubmitBuild validates the build input and persists a pending job. The
// input is snapshotted at submission time; later configuration changes do
// not affect queued builds.
func (m *Manager) SubmitBuild(params *Params, owner string) (*db.BuildJob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(params)
	if err != nil {
		return nil, errors.ErrInvalidBuildInput.WithMessage("snapshotting build input").WithCause(err)
	}

	job := &db.BuildJob{
		Owner:          owner,
		Status:         db.BuildStatusPending,
		Component:      params.Component,
		Version:        params.Version,
		Release:        params.Release,
		Platforms:      strings.Join(params.Platforms, ","),
		Scratch:        params.Scratch,
		Isolated:       params.Isolated,
		ParamsSnapshot: string(snapshot),
	}

	if err := m.buildJobRepo.Create(job); err != nil {
		return nil, errors.Wrap(err, errors.DomainDatabase, "create_failed", 500,
			"failed to create build job")
	}

	log.Info("Build job submitted",
		"build_id", job.ID,
		"component", params.Component,
		"version", params.Version,
		"platforms", job.Platforms,
	)

	select {
	case m.jobQueue <- job:
		log.Debug("Build job dispatched immediately", "build_id", job.ID)
	default:
		log.Debug("Build job queued for later dispatch", "build_id", job.ID)
	}

	return job, nil
}

// CancelBuild requests cancellation of a pending or running build. For a
// running build the cancellation flag is observed at the pipeline's next
// checkpoint; the in-progress plugin is never interrupted.
func (m *Manager) CancelBuild(buildID string) error {
	job, err := m.buildJobRepo.GetByID(buildID)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.ErrBuildNotFound.WithMessagef("build not found: %s", buildID)
	}
	if job.Status.Terminal() {
		return errors.ErrBuildNotCancelable.WithMessagef(
			"build %s already %s", buildID, job.Status)
	}

	if err := m.buildJobRepo.MarkCancelling(buildID); err != nil {
		return errors.ErrBuildNotCancelable.WithCause(err)
	}

	m.mu.RLock()
	w := m.workflows[buildID]
	cancel := m.cancelFuncs[buildID]
	m.mu.RUnlock()

	if w != nil {
		w.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	if w == nil && cancel == nil {
		// Not picked up by a worker yet; the job is finalized here so it
		// never starts.
		return m.buildJobRepo.MarkCancelled(buildID, "")
	}

	return nil
}

// GetBuildStatus returns the current status of a build
func (m *Manager) GetBuildStatus(buildID string) (*db.BuildJob, error) {
	return m.buildJobRepo.GetByID(buildID)
}

// BuildJobRepo returns the build job repository
func (m *Manager) BuildJobRepo() *db.BuildJobRepository {
	return m.buildJobRepo
}

// Storage returns the document storage backend
func (m *Manager) Storage() storage.Backend {
	return m.storage
}

// registerBuild tracks a running build's workflow and cancel function
func (m *Manager) registerBuild(buildID string, w *Workflow, cancel context.CancelFunc) {
	m.mu.Lock()
	m.workflows[buildID] = w
	m.cancelFuncs[buildID] = cancel
	m.mu.Unlock()
}

// unregisterBuild removes a finished build from tracking
func (m *Manager) unregisterBuild(buildID string) {
	m.mu.Lock()
	delete(m.workflows, buildID)
	delete(m.cancelFuncs, buildID)
	m.mu.Unlock()
}
