package api

import (
	"time"

	"github.com/craterbuild/crater/src/craterd/build"
	"github.com/craterbuild/crater/src/craterd/db"
)

// APIInfo represents the root API discovery response
type APIInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Version     string           `json:"version"`
	APIVersions []string         `json:"api_versions"`
	Endpoints   APIInfoEndpoints `json:"endpoints"`
}

// APIInfoEndpoints contains the available API endpoints
type APIInfoEndpoints struct {
	Health  string `json:"health"`
	Version string `json:"version"`
	Token   string `json:"token"`
	Builds  string `json:"builds"`
	Hosts   string `json:"hosts"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage,omitempty"`
	Timestamp string `json:"timestamp"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version        string `json:"version"`
	ReleaseVersion string `json:"release_version"`
	BuildDate      string `json:"build_date"`
	GitCommit      string `json:"git_commit"`
	GoVersion      string `json:"go_version"`
}

// TokenRequest is the token exchange request body
type TokenRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
	Subject     string `json:"subject"`
}

// TokenResponse carries the issued JWT
type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// SubmitBuildRequest is the build submission request body
type SubmitBuildRequest struct {
	build.Params
}

// BuildResponse is the serialized view of one build job
type BuildResponse struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner,omitempty"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	Component   string     `json:"component"`
	Version     string     `json:"version"`
	Release     string     `json:"release,omitempty"`
	Platforms   string     `json:"platforms"`
	Scratch     bool       `json:"scratch"`
	Isolated    bool       `json:"isolated"`
	DocumentKey string     `json:"document_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// buildResponse projects a stored job into its API shape
func buildResponse(job *db.BuildJob) BuildResponse {
	return BuildResponse{
		ID:          job.ID,
		Owner:       job.Owner,
		Status:      string(job.Status),
		Phase:       job.Phase,
		Component:   job.Component,
		Version:     job.Version,
		Release:     job.Release,
		Platforms:   job.Platforms,
		Scratch:     job.Scratch,
		Isolated:    job.Isolated,
		DocumentKey: job.DocumentKey,
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// HostResponse is the serialized view of one pool host with its current
// slot occupancy
type HostResponse struct {
	Hostname  string   `json:"hostname"`
	Platforms []string `json:"platforms"`
	Enabled   bool     `json:"enabled"`
	Slots     int      `json:"slots"`
	Occupied  int      `json:"occupied"`
}

// ReconcileResponse reports the outcome of a ledger reconciliation pass
type ReconcileResponse struct {
	Released int `json:"released"`
}
