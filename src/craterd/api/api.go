// Package api exposes the craterd REST API: build submission and
// lifecycle, host pool observation and token exchange.
package api

import (
	"github.com/craterbuild/crater/src/common/logs"
	"github.com/craterbuild/crater/src/common/version"
	"github.com/craterbuild/crater/src/craterd/auth"
	"github.com/craterbuild/crater/src/craterd/build"
	"github.com/craterbuild/crater/src/craterd/db"
	"github.com/craterbuild/crater/src/craterd/remote"
	"github.com/craterbuild/crater/src/craterd/storage"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the api package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

var versionInfo = version.New()

// SetVersionInfo sets the version info reported by the version endpoint
func SetVersionInfo(v *version.Info) {
	if v != nil {
		versionInfo = v
	}
}

// Config holds the API dependencies
type Config struct {
	BuildManager *build.Manager
	Pool         *remote.Pool
	Ledger       *remote.Ledger
	Storage      storage.Backend
	JWTService   *auth.Service
	Database     *db.Database
}

// API holds the handler state for all routes
type API struct {
	buildManager *build.Manager
	pool         *remote.Pool
	ledger       *remote.Ledger
	storage      storage.Backend
	jwtService   *auth.Service
	database     *db.Database
	rateLimiter  *RateLimiter
}

// New creates a new API instance
func New(cfg Config) *API {
	return &API{
		buildManager: cfg.BuildManager,
		pool:         cfg.Pool,
		ledger:       cfg.Ledger,
		storage:      cfg.Storage,
		jwtService:   cfg.JWTService,
		database:     cfg.Database,
		rateLimiter:  NewRateLimiter(DefaultRateLimitConfig()),
	}
}
