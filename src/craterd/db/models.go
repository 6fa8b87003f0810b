package db

import "time"

// BuildJobStatus represents the status of a build job
type BuildJobStatus string

const (
	BuildStatusPending    BuildJobStatus = "pending"
	BuildStatusRunning    BuildJobStatus = "running"
	BuildStatusSucceeded  BuildJobStatus = "succeeded"
	BuildStatusFailed     BuildJobStatus = "failed"
	BuildStatusCancelled  BuildJobStatus = "cancelled"
	BuildStatusCancelling BuildJobStatus = "cancelling"
)

// Terminal reports whether the status is final
func (s BuildJobStatus) Terminal() bool {
	switch s {
	case BuildStatusSucceeded, BuildStatusFailed, BuildStatusCancelled:
		return true
	}
	return false
}

// BuildJob is the persisted record of one submitted build: its input
// snapshot, lifecycle status, the phase it is currently in and, once
// finished, the storage key of its archived document.
type BuildJob struct {
	ID             string         `json:"id"`
	Owner          string         `json:"owner,omitempty"`
	Status         BuildJobStatus `json:"status"`
	Phase          string         `json:"phase,omitempty"`
	Component      string         `json:"component"`
	Version        string         `json:"version"`
	Release        string         `json:"release,omitempty"`
	Platforms      string         `json:"platforms"`
	Scratch        bool           `json:"scratch"`
	Isolated       bool           `json:"isolated"`
	ParamsSnapshot string         `json:"-"`
	DocumentKey    string         `json:"document_key,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// BuildLog represents a log entry emitted while processing a build job
type BuildLog struct {
	ID        int64     `json:"id"`
	BuildID   string    `json:"build_id"`
	Phase     string    `json:"phase,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
