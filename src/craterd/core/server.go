package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/craterbuild/crater/src/common/cli"
	"github.com/craterbuild/crater/src/craterd/api"
	"github.com/craterbuild/crater/src/craterd/auth"
	"github.com/craterbuild/crater/src/craterd/build"
	"github.com/craterbuild/crater/src/craterd/db"
	"github.com/craterbuild/crater/src/craterd/remote"
	"github.com/craterbuild/crater/src/craterd/storage"
)

// Server holds the HTTP server instance and configuration
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	database     *db.Database
	storage      storage.Backend
	buildManager *build.Manager
	api          *api.API
}

// NewServer wires the coordinating node together: the host pool, slot
// ledger, plugin registry and build manager behind the REST API.
func NewServer(database *db.Database, storageBackend storage.Backend,
	pool *remote.Pool, ledger *remote.Ledger,
	registry *build.Registry, pipeline build.PipelineConf) *Server {

	// Set Gin mode based on log level
	if viper.GetString("log.level") == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(corsMiddleware())

	// Add logging middleware
	router.Use(ginLogger())

	// Initialize auth components
	jwtCfg := auth.DefaultConfig()
	jwtCfg.AdminToken = viper.GetString("auth.admin_token")
	jwtCfg.SubmitterToken = viper.GetString("auth.submitter_token")
	jwtService := auth.NewService(jwtCfg, database)

	// Initialize build manager
	build.SetLogger(log)
	buildCfg := build.DefaultConfig()
	buildCfg.Workers = viper.GetInt("build.workers")
	buildManager := build.NewManager(database, storageBackend, registry, pipeline, buildCfg)

	// Create API instance with all dependencies
	api.SetLogger(log)
	api.SetVersionInfo(VersionInfo)
	apiInstance := api.New(api.Config{
		BuildManager: buildManager,
		Pool:         pool,
		Ledger:       ledger,
		Storage:      storageBackend,
		JWTService:   jwtService,
		Database:     database,
	})

	// Register all routes
	apiInstance.RegisterRoutes(router)

	s := &Server{
		router:       router,
		database:     database,
		storage:      storageBackend,
		buildManager: buildManager,
		api:          apiInstance,
	}

	// Start build manager
	go func() {
		if err := buildManager.Start(context.Background()); err != nil {
			log.Error("Failed to start build manager", "error", err)
		}
	}()

	return s
}

// Run starts the HTTP server
func (s *Server) Run() error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	addr := fmt.Sprintf("%s:%d", bind, port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	errChan := make(chan error, 1)

	// Periodic database snapshots limit data loss on a hard crash; the
	// authoritative snapshot is still taken on shutdown
	snapshotDone := make(chan struct{})
	defer close(snapshotDone)
	if interval := viper.GetInt("database.snapshot_minutes"); interval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(interval) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.database.SaveToDisk(); err != nil {
						log.Error("Periodic database snapshot failed", "error", err)
					}
				case <-snapshotDone:
					return
				}
			}
		}()
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting craterd server", "address", addr)
		log.Info("Document storage enabled", "type", s.storage.Type(), "location", s.storage.Location())

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Received signal, shutting down", "signal", sig)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Stop build manager after the listener so no new submissions arrive
	// while pipelines wind down
	if err := s.buildManager.Stop(); err != nil {
		log.Error("Build manager shutdown error", "error", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// corsMiddleware returns a gin middleware for handling CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger returns a gin middleware for logging requests
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		if query != "" {
			path = path + "?" + query
		}

		log.Debug("HTTP request",
			"status", status,
			"method", method,
			"path", path,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// runServer is called by the root command to start the server
func runServer() error {
	log.Info("craterd starting",
		"version", VersionInfo.Version,
		"build_date", VersionInfo.BuildDate,
		"log_output", log.Output(),
	)

	// Initialize database
	dbPath := viper.GetString("database.path")
	log.Info("Initializing database", "persist_path", dbPath)

	database, err := db.New(db.Config{
		PersistPath: dbPath,
		LoadOnStart: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize storage backend
	storageType := viper.GetString("storage.type")

	// If S3 endpoint is specified, use S3 regardless of storage.type
	s3Endpoint := viper.GetString("storage.s3.endpoint")
	if s3Endpoint != "" {
		storageType = "s3"
	}

	log.Info("Initializing storage", "type", storageType)

	storageBackend, err := storage.New(storage.Config{
		Type: storageType,
		Local: storage.LocalConfig{
			BasePath: viper.GetString("storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        s3Endpoint,
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
			UsePathStyle:    viper.GetBool("storage.s3.path_style"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// For S3 backend, ensure bucket exists
	if s3Backend, ok := storageBackend.(*storage.S3Backend); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s3Backend.EnsureBucket(ctx); err != nil {
			log.Warn("S3 bucket not accessible - document archiving may not work", "error", err)
		}
	}

	// Initialize host pool from the hosts section of the config file
	remote.SetLogger(log)
	var hostConfig map[string][]remote.HostConfig
	if err := viper.UnmarshalKey("hosts", &hostConfig); err != nil {
		return fmt.Errorf("failed to parse host pool configuration: %w", err)
	}
	pool, err := remote.NewPool(hostConfig)
	if err != nil {
		return fmt.Errorf("failed to build host pool: %w", err)
	}
	log.Info("Host pool configured", "platforms", pool.Platforms(), "hosts", len(pool.AllHosts()))

	// Initialize the slot ledger and reclaim leases abandoned by crashed
	// orchestrator runs
	ledgerDir := cli.GetExpandedString("ledger.dir")
	ledger, err := remote.NewLedger(remote.DefaultLedgerConfig(ledgerDir))
	if err != nil {
		return fmt.Errorf("failed to initialize slot ledger: %w", err)
	}

	maxAge := time.Duration(viper.GetInt("ledger.reconcile_max_age_hours")) * time.Hour
	if released, err := ledger.Reconcile(nil, maxAge); err != nil {
		log.Warn("Startup ledger reconciliation failed", "error", err)
	} else if released > 0 {
		log.Info("Reclaimed stale slot leases", "released", released)
	}

	// Assemble the coordinator pipeline
	selector := remote.NewSelector(pool, ledger)
	dispatcher := remote.NewSSHDispatcher(remote.SSHDispatcherConfig{
		Command: viper.GetString("remote.worker_command"),
	})

	orchCfg := build.DefaultOrchestrateConfig()
	if m := viper.GetInt("orchestrate.acquire_timeout_minutes"); m > 0 {
		orchCfg.AcquireTimeout = time.Duration(m) * time.Minute
	}
	if h := viper.GetInt("orchestrate.build_timeout_hours"); h > 0 {
		orchCfg.BuildTimeout = time.Duration(h) * time.Hour
	}

	registry := build.NewRegistry()
	registry.Register(&build.TagFromConfigPlugin{})
	registry.Register(&build.OrchestratePlugin{
		Selector:   selector,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Config:     orchCfg,
	})
	registry.Register(&build.FetchWorkerMetadataPlugin{})
	registry.Register(&build.StoreMetadataPlugin{Store: storageBackend})

	allowedToFail := true
	pipeline := build.PipelineConf{
		build.PhasePreBuild:  {{Name: "tag_from_config"}},
		build.PhaseBuildstep: {{Name: "orchestrate_build"}},
		build.PhasePostBuild: {{Name: "fetch_worker_metadata", AllowedToFail: &allowedToFail}},
		build.PhaseExit:      {{Name: "store_metadata"}},
	}

	server := NewServer(database, storageBackend, pool, ledger, registry, pipeline)

	// Run server (blocks until shutdown signal)
	err = server.Run()

	// Ensure database is persisted on shutdown
	log.Info("Persisting database to disk")
	if dbErr := database.Shutdown(); dbErr != nil {
		log.Error("Failed to persist database", "error", dbErr)
		if err == nil {
			err = dbErr
		}
	} else {
		log.Info("Database persisted successfully")
	}

	return err
}
