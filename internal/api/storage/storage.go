package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nextslurm/backend/internal/api/domain"
	"github.com/nextslurm/backend/internal/api/model"
)

// Storage handles all database operations for the API service.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ValidateFileID reports whether the file exists and is owned by the user.
// An empty fileID is trivially valid: the job simply has no upload.
func (s *Storage) ValidateFileID(ctx context.Context, fileID, userID string) (bool, error) {
	if fileID == "" {
		return true, nil
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM files WHERE id = $1 AND user_id = $2)`
	if err := s.db.GetContext(ctx, &exists, query, fileID, userID); err != nil {
		return false, fmt.Errorf("failed to validate file id: %w", err)
	}

	s.logger.Info("Validated file id",
		slog.String("file_id", fileID),
		slog.String("user_id", userID),
		slog.Bool("valid", exists),
	)

	return exists, nil
}

// AuthorizeJobType resolves a job type for a requesting user. The result is
// tri-state: the job type may not exist, may exist but be off-limits, or be
// granted along with the full template. The requester is granted access when
// they own the type, are a global admin, or the type is shared with them
// directly or through one of their organisations.
func (s *Storage) AuthorizeJobType(ctx context.Context, jobTypeID, userID string, role int) (domain.JobTypeAccess, *model.JobType, error) {
	var jobType model.JobType
	query := `
		SELECT id, name, description, script, created_by, has_file_upload, array_job
		FROM job_types
		WHERE id = $1
	`
	err := s.db.GetContext(ctx, &jobType, query, jobTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Job type not found", slog.String("job_type_id", jobTypeID))
			return domain.JobTypeNotFound, nil, nil
		}
		return domain.JobTypeNotFound, nil, fmt.Errorf("failed to get job type: %w", err)
	}

	if jobType.CreatedBy != userID && role != domain.RoleAdmin {
		var shared bool
		sharedQuery := `
			SELECT EXISTS(
				SELECT 1 FROM shared_job_types s
				WHERE s.job_type_id = $1
				  AND (
					s.user_id = $2
					OR s.organisation_id IN (
						SELECT organisation_id FROM organisation_members WHERE user_id = $2
					)
				  )
			)
		`
		if err := s.db.GetContext(ctx, &shared, sharedQuery, jobTypeID, userID); err != nil {
			return domain.JobTypeNotFound, nil, fmt.Errorf("failed to check job type sharing: %w", err)
		}

		if !shared {
			s.logger.Warn("User not authorized for job type",
				slog.String("job_type_id", jobTypeID),
				slog.String("user_id", userID),
			)
			return domain.JobTypeForbidden, nil, nil
		}
	}

	s.logger.Info("Job type authorized",
		slog.String("job_type_id", jobTypeID),
		slog.String("user_id", userID),
	)

	return domain.JobTypeGranted, &jobType, nil
}

// CreateJob inserts the job row and runs stage inside the same transaction.
// The stage callback performs directory setup, file staging, script
// rendering and the queue publish; any error from it rolls the insert back.
// Filesystem side effects of a failed stage are not undone, only the row.
func (s *Storage) CreateJob(ctx context.Context, job *model.Job, stage func(job *model.Job) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, name, job_type_id, file_id, created_by,
			auth_code, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`

	_, err = tx.ExecContext(
		ctx,
		query,
		job.ID,
		job.Name,
		job.JobTypeID,
		job.FileID,
		job.CreatedBy,
		job.AuthCode,
		job.Status,
		job.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to create job: %w", err)
	}

	if stage != nil {
		if err := stage(job); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job creation: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("job_type_id", job.JobTypeID),
		slog.String("created_by", job.CreatedBy),
	)

	return nil
}

// GetJobAuthCode returns the stored per-job secret for callback
// verification.
func (s *Storage) GetJobAuthCode(ctx context.Context, jobID string) (string, error) {
	var authCode string
	query := `SELECT auth_code FROM jobs WHERE id = $1`

	err := s.db.GetContext(ctx, &authCode, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrJobNotFound
		}
		return "", fmt.Errorf("failed to get job auth code: %w", err)
	}

	return authCode, nil
}

// MarkJobRunning sets the job running and records the start time, keeping an
// existing start time if one was already set.
func (s *Storage) MarkJobRunning(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    start_time = COALESCE(start_time, NOW())
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusRunning, jobID); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	s.logger.Info("Job marked running", slog.String("job_id", jobID))
	return nil
}

// MarkJobTerminal sets a terminal status and the end time. Nothing prevents
// a second terminal write from overwriting the first; last write wins.
func (s *Storage) MarkJobTerminal(ctx context.Context, jobID, status string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    end_time = NOW()
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, status, jobID); err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}

	s.logger.Info("Job marked terminal",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)
	return nil
}

// GetJobByID retrieves a job row.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `
		SELECT id, name, job_type_id, file_id, created_by,
		       auth_code, status, start_time, end_time, created_at
		FROM jobs
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows and pages a job listing.
type JobFilter struct {
	CreatedBy string
	Status    string
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is an opaque pagination position.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs matching the filter, newest first.
// The extra row tells the caller whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `
		SELECT id, name, job_type_id, file_id, created_by,
		       auth_code, status, start_time, end_time, created_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", argIdx)
		args = append(args, filter.CreatedBy)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
