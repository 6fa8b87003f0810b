package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BuildJobRepository handles build job database operations
type BuildJobRepository struct {
	db *Database
}

// NewBuildJobRepository creates a new build job repository
func NewBuildJobRepository(db *Database) *BuildJobRepository {
	return &BuildJobRepository{db: db}
}

// Create inserts a new build job
func (r *BuildJobRepository) Create(job *BuildJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = BuildStatusPending
	}

	query := `
		INSERT INTO build_jobs (id, owner, status, phase, component, version, release,
			platforms, scratch, isolated, params_snapshot, document_key,
			error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.DB().Exec(query,
		job.ID, job.Owner, job.Status, job.Phase, job.Component, job.Version, job.Release,
		job.Platforms, job.Scratch, job.Isolated, job.ParamsSnapshot, job.DocumentKey,
		job.ErrorMessage, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create build job: %w", err)
	}

	return nil
}

// selectBuildJobsQuery is the base SELECT query for build jobs
const selectBuildJobsQuery = `
	SELECT id, owner, status, phase, component, version, release,
		platforms, scratch, isolated, params_snapshot, document_key,
		error_message, created_at, started_at, completed_at
	FROM build_jobs
`

// GetByID retrieves a build job by ID
func (r *BuildJobRepository) GetByID(id string) (*BuildJob, error) {
	query := selectBuildJobsQuery + ` WHERE id = ?`
	row := r.db.DB().QueryRow(query, id)
	return r.scanJob(row)
}

// List retrieves build jobs ordered most recent first
func (r *BuildJobRepository) List(limit int) ([]BuildJob, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectBuildJobsQuery + ` ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.DB().Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list build jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// ListByStatus retrieves all build jobs with a specific status
func (r *BuildJobRepository) ListByStatus(status BuildJobStatus) ([]BuildJob, error) {
	query := selectBuildJobsQuery + ` WHERE status = ? ORDER BY created_at ASC`
	rows, err := r.db.DB().Query(query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list build jobs by status: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// ListPending retrieves all pending build jobs
func (r *BuildJobRepository) ListPending() ([]BuildJob, error) {
	return r.ListByStatus(BuildStatusPending)
}

// ListActive retrieves all build jobs that are not in a terminal state
func (r *BuildJobRepository) ListActive() ([]BuildJob, error) {
	query := selectBuildJobsQuery + ` WHERE status IN (?, ?, ?) ORDER BY created_at ASC`
	rows, err := r.db.DB().Query(query,
		BuildStatusPending, BuildStatusRunning, BuildStatusCancelling)
	if err != nil {
		return nil, fmt.Errorf("failed to list active build jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// MarkStarted marks a build job as started
func (r *BuildJobRepository) MarkStarted(id string) error {
	now := time.Now()
	query := `UPDATE build_jobs SET status = ?, started_at = ? WHERE id = ?`
	return r.exec(query, BuildStatusRunning, now, id)
}

// UpdatePhase records the pipeline phase the build is currently in
func (r *BuildJobRepository) UpdatePhase(id string, phase string) error {
	query := `UPDATE build_jobs SET phase = ? WHERE id = ?`
	return r.exec(query, phase, id)
}

// MarkCompleted marks a build job as succeeded and records its archived
// document key
func (r *BuildJobRepository) MarkCompleted(id string, documentKey string) error {
	now := time.Now()
	query := `UPDATE build_jobs SET status = ?, document_key = ?, completed_at = ? WHERE id = ?`
	return r.exec(query, BuildStatusSucceeded, documentKey, now, id)
}

// MarkFailed marks a build job as failed
func (r *BuildJobRepository) MarkFailed(id string, errorMsg string, documentKey string) error {
	now := time.Now()
	query := `UPDATE build_jobs SET status = ?, error_message = ?, document_key = ?, completed_at = ? WHERE id = ?`
	return r.exec(query, BuildStatusFailed, errorMsg, documentKey, now, id)
}

// MarkCancelling flags a running build job as cancellation-requested
func (r *BuildJobRepository) MarkCancelling(id string) error {
	query := `UPDATE build_jobs SET status = ? WHERE id = ? AND status IN (?, ?)`
	result, err := r.db.DB().Exec(query, BuildStatusCancelling, id,
		BuildStatusPending, BuildStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark build cancelling: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build job not found or not cancelable: %s", id)
	}
	return nil
}

// MarkCancelled marks a build job as cancelled
func (r *BuildJobRepository) MarkCancelled(id string, documentKey string) error {
	now := time.Now()
	query := `UPDATE build_jobs SET status = ?, document_key = ?, completed_at = ? WHERE id = ?`
	return r.exec(query, BuildStatusCancelled, documentKey, now, id)
}

// Delete removes a build job by ID
func (r *BuildJobRepository) Delete(id string) error {
	return r.exec("DELETE FROM build_jobs WHERE id = ?", id)
}

// AppendLog adds a log entry for a build job
func (r *BuildJobRepository) AppendLog(buildID, phase, level, message string) error {
	query := `INSERT INTO build_logs (build_id, phase, level, message) VALUES (?, ?, ?, ?)`
	_, err := r.db.DB().Exec(query, buildID, phase, level, message)
	if err != nil {
		return fmt.Errorf("failed to append build log: %w", err)
	}
	return nil
}

// GetLogs retrieves the log entries for a build job in emission order
func (r *BuildJobRepository) GetLogs(buildID string, limit int) ([]BuildLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT id, build_id, phase, level, message, created_at
		FROM build_logs WHERE build_id = ? ORDER BY id ASC LIMIT ?
	`
	rows, err := r.db.DB().Query(query, buildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get build logs: %w", err)
	}
	defer rows.Close()

	var logs []BuildLog
	for rows.Next() {
		var entry BuildLog
		var phase sql.NullString
		if err := rows.Scan(&entry.ID, &entry.BuildID, &phase, &entry.Level,
			&entry.Message, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build log: %w", err)
		}
		entry.Phase = phase.String
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// exec runs a statement that must affect at least one row
func (r *BuildJobRepository) exec(query string, args ...interface{}) error {
	result, err := r.db.DB().Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update build job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build job not found")
	}
	return nil
}

// scanJob scans a single build job row
func (r *BuildJobRepository) scanJob(row *sql.Row) (*BuildJob, error) {
	var job BuildJob
	var owner, phase, release, documentKey, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &owner, &job.Status, &phase, &job.Component,
		&job.Version, &release, &job.Platforms, &job.Scratch, &job.Isolated,
		&job.ParamsSnapshot, &documentKey, &errorMessage,
		&job.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan build job: %w", err)
	}

	job.Owner = owner.String
	job.Phase = phase.String
	job.Release = release.String
	job.DocumentKey = documentKey.String
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

// scanJobs scans multiple build job rows
func (r *BuildJobRepository) scanJobs(rows *sql.Rows) ([]BuildJob, error) {
	var jobs []BuildJob
	for rows.Next() {
		var job BuildJob
		var owner, phase, release, documentKey, errorMessage sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(&job.ID, &owner, &job.Status, &phase, &job.Component,
			&job.Version, &release, &job.Platforms, &job.Scratch, &job.Isolated,
			&job.ParamsSnapshot, &documentKey, &errorMessage,
			&job.CreatedAt, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build job: %w", err)
		}

		job.Owner = owner.String
		job.Phase = phase.String
		job.Release = release.String
		job.DocumentKey = documentKey.String
		job.ErrorMessage = errorMessage.String
		if startedAt.Valid {
			job.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
