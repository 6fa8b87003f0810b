package errors

import "net/http"

// Common error codes used across domains
const (
	CodeNotFound       Code = "not_found"
	CodeAlreadyExists  Code = "already_exists"
	CodeInvalidRequest Code = "invalid_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
	CodeUnavailable    Code = "unavailable"
	CodeTimeout        Code = "timeout"
	CodeCanceled       Code = "canceled"
)

// ============================================================================
// Plugin Errors
// ============================================================================

var (
	// ErrUnknownPlugin is returned when a configured plugin name cannot be
	// resolved through the registry
	ErrUnknownPlugin = New(DomainPlugin, "unknown_plugin", http.StatusBadRequest,
		"Unknown plugin")

	// ErrMissingRequiredPlugin is returned by pipeline validation when a
	// required plugin cannot be resolved before the build starts
	ErrMissingRequiredPlugin = New(DomainPlugin, "missing_required_plugin", http.StatusBadRequest,
		"Required plugin is not available")

	// ErrDuplicatePlugin is returned when the same plugin name is configured
	// more than once in a build; each plugin runs at most once per build
	ErrDuplicatePlugin = New(DomainPlugin, "duplicate_plugin", http.StatusBadRequest,
		"Plugin configured more than once")

	// ErrPluginFailed is returned when a plugin that is not allowed to fail
	// raises an error during a phase
	ErrPluginFailed = New(DomainPlugin, "plugin_failed", http.StatusInternalServerError,
		"Plugin failed")
)

// ============================================================================
// Ledger Errors
// ============================================================================

var (
	// ErrSlotUnavailable is returned by a slot acquisition attempt when the
	// host has no free capacity; callers may retry
	ErrSlotUnavailable = New(DomainLedger, "slot_unavailable", http.StatusConflict,
		"No free slot on host")

	// ErrInvalidRelease is returned when a slot handle is released more than
	// once; this indicates an accounting bug and is never swallowed
	ErrInvalidRelease = New(DomainLedger, "invalid_release", http.StatusInternalServerError,
		"Slot released twice")

	// ErrLedgerCorrupt is returned when a persisted ledger record cannot be
	// parsed or fails validation
	ErrLedgerCorrupt = New(DomainLedger, "corrupt_record", http.StatusInternalServerError,
		"Ledger record is corrupt")

	// ErrLedgerLocked is returned when the per-host ledger lock cannot be
	// acquired within the configured wait
	ErrLedgerLocked = New(DomainLedger, "locked", http.StatusConflict,
		"Ledger record is locked by another process")
)

// ============================================================================
// Host Errors
// ============================================================================

var (
	// ErrNoHostAvailable is returned when every host in a platform's pool is
	// disabled or fully occupied; this is retryable, not terminal
	ErrNoHostAvailable = New(DomainHost, "no_host_available", http.StatusServiceUnavailable,
		"No host with free capacity")

	// ErrUnknownPlatform is returned when a build requests a platform that
	// has no configured host pool
	ErrUnknownPlatform = New(DomainHost, "unknown_platform", http.StatusBadRequest,
		"No host pool configured for platform")
)

// ============================================================================
// Remote Errors
// ============================================================================

var (
	// ErrDispatchFailed is returned when a worker build cannot be started on
	// the selected host
	ErrDispatchFailed = New(DomainRemote, "dispatch_failed", http.StatusBadGateway,
		"Failed to dispatch worker build")

	// ErrWorkerFailed is returned when a dispatched worker build reports a
	// failed terminal state
	ErrWorkerFailed = New(DomainRemote, "worker_failed", http.StatusBadGateway,
		"Worker build failed")
)

// ============================================================================
// Build Errors
// ============================================================================

var (
	// ErrBuildNotFound is returned when a build ID cannot be found
	ErrBuildNotFound = New(DomainBuild, CodeNotFound, http.StatusNotFound,
		"Build not found")

	// ErrBuildCanceled is returned when work is skipped because the build's
	// cancellation flag was observed
	ErrBuildCanceled = New(DomainBuild, CodeCanceled, http.StatusConflict,
		"Build canceled")

	// ErrBuildNotCancelable is returned when cancellation is requested for a
	// build already in a terminal state
	ErrBuildNotCancelable = New(DomainBuild, "not_cancelable", http.StatusConflict,
		"Build already reached a terminal state")
)

// ============================================================================
// Validation Errors
// ============================================================================

var (
	// ErrInvalidBuildInput is returned when the build input document fails
	// schema validation; no slots are touched and no plugin runs
	ErrInvalidBuildInput = New(DomainValidation, "invalid_build_input", http.StatusBadRequest,
		"Invalid build input document")

	// ErrInvalidHostConfig is returned when the host pool configuration is
	// malformed at process start
	ErrInvalidHostConfig = New(DomainValidation, "invalid_host_config", http.StatusInternalServerError,
		"Invalid host pool configuration")
)

// ============================================================================
// Auth Errors
// ============================================================================

var (
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = New(DomainAuth, "invalid_credentials", http.StatusUnauthorized,
		"Invalid credentials")

	// ErrTokenInvalid is returned when a JWT token is malformed, expired or
	// has a bad signature
	ErrTokenInvalid = New(DomainAuth, "token_invalid", http.StatusUnauthorized,
		"Invalid token")

	// ErrNoToken is returned when no authentication token is provided
	ErrNoToken = New(DomainAuth, "no_token", http.StatusUnauthorized,
		"No authentication token provided")

	// ErrRateLimited is returned when a client exceeds the request rate limit
	ErrRateLimited = New(DomainAuth, "rate_limited", http.StatusTooManyRequests,
		"Too many requests")

	// ErrForbidden is returned when the authenticated role lacks access
	ErrForbidden = New(DomainAuth, CodeForbidden, http.StatusForbidden,
		"Access denied")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrObjectNotFound is returned when a storage object does not exist
	ErrObjectNotFound = New(DomainStorage, CodeNotFound, http.StatusNotFound,
		"Object not found")

	// ErrStorageUnavailable is returned when the storage backend cannot be
	// reached
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable, http.StatusServiceUnavailable,
		"Storage backend unavailable")
)
