package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/nextslurm/backend/internal/worker/domain"
)

// Storage handles all database operations for the worker
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

// ClaimDispatch marks a job as dispatched using optimistic locking. Queue
// delivery is at-least-once, so a redelivered message may describe a job a
// consumer already handed to the scheduler; the claim makes resubmission of
// the same job a no-op instead of a duplicate cluster job.
func (s *Storage) ClaimDispatch(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET dispatched_at = NOW()
		WHERE id = $1
		  AND dispatched_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim dispatch: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Dispatch claim lost - job already dispatched or unknown",
			slog.String("job_id", jobID),
		)
		return domain.ErrAlreadyDispatched
	}

	s.logger.Info("Dispatch claimed",
		slog.String("job_id", jobID),
	)

	return nil
}
