package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bobarin/rendercast/internal/models"
)

var (
	// ErrDuplicateJob is returned when a job id already exists.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrJobNotFound is returned when no row matches the job id.
	ErrJobNotFound = errors.New("job not found")
)

const jobColumns = `
	id, status, step, payload,
	voice_locator, subtitle_locator, video_locator, thumbnail_locator,
	error_message, created_at, updated_at
`

// CreateJob inserts a new job in queued state. Duplicate ids fail with
// ErrDuplicateJob.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, status, step, step_idx, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := db.QueryRowContext(
		ctx, query,
		job.ID, models.JobStatusQueued, models.StepNone, 0, job.Payload,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicateJob
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.Status = models.JobStatusQueued
	return nil
}

// GetJob returns the full current record for a job id.
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Status, &job.Step, &job.Payload,
		&job.VoiceLocator, &job.SubtitleLocator, &job.VideoLocator, &job.ThumbnailLocator,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// AdvanceJob persists a step checkpoint: the new step plus any artifact
// locators or derived payload state, all in one statement. The step only
// moves forward — a stale worker whose record was already advanced by a
// restart updates nothing and gets advanced=false.
func (db *DB) AdvanceJob(ctx context.Context, id string, step models.Step, upd models.ArtifactUpdates) (bool, error) {
	idx := models.StepIndex(step)
	if idx <= 0 {
		return false, fmt.Errorf("cannot advance to step %q", step)
	}

	query := `
		UPDATE jobs SET
			step = $2,
			step_idx = $3,
			status = COALESCE($4, status),
			voice_locator = COALESCE($5, voice_locator),
			subtitle_locator = COALESCE($6, subtitle_locator),
			video_locator = COALESCE($7, video_locator),
			thumbnail_locator = COALESCE($8, thumbnail_locator),
			payload = COALESCE($9, payload),
			updated_at = now()
		WHERE id = $1 AND step_idx < $3
	`

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	var payload interface{}
	if upd.Payload != nil {
		payload = *upd.Payload
	}

	result, err := db.ExecContext(ctx, query,
		id, step, idx, status,
		upd.VoiceLocator, upd.SubtitleLocator, upd.VideoLocator, upd.ThumbnailLocator,
		payload,
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read advance result: %w", err)
	}
	return rows > 0, nil
}

// SetJobStatus updates only the status field.
func (db *DB) SetJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	query := `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`

	result, err := db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetJobFailed marks the job failed with an error message. The step marker
// is left untouched so a resubmitted job retries the step that failed.
func (db *DB) SetJobFailed(ctx context.Context, id string, message string) error {
	query := `
		UPDATE jobs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := db.ExecContext(ctx, query, id, models.JobStatusFailed, message)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// RequeueFailed flips a failed job back to queued and clears its recorded
// error. The step marker and artifact locators stay, so the retry resumes
// from the step that failed. Returns false when the job is not failed.
func (db *DB) RequeueFailed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	result, err := db.ExecContext(ctx, query, id, models.JobStatusQueued, models.JobStatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}
	return rows > 0, nil
}

// ListResumable returns every job that should re-enter the queue at
// process start. Jobs found in processing state were mid-flight when the
// previous process died; they are reset to queued in the same statement —
// step checkpointing makes re-entry safe.
func (db *DB) ListResumable(ctx context.Context) ([]models.Job, error) {
	query := `
		WITH resumed AS (
			UPDATE jobs
			SET status = $1, updated_at = now()
			WHERE status IN ($1, $2)
			RETURNING ` + jobColumns + `
		)
		SELECT ` + jobColumns + ` FROM resumed ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		err := rows.Scan(
			&job.ID, &job.Status, &job.Step, &job.Payload,
			&job.VoiceLocator, &job.SubtitleLocator, &job.VideoLocator, &job.ThumbnailLocator,
			&job.Error, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resumable jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in a given status, used by the
// health endpoint.
func (db *DB) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
