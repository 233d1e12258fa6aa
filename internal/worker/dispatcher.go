package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextslurm/backend/internal/worker/domain"
	"golang.org/x/sync/errgroup"
)

// Submitter hands scripts and sentinel jobs to the batch scheduler.
type Submitter interface {
	Submit(ctx context.Context, scriptPath string) (string, error)
	SubmitSentinel(ctx context.Context, dependency, schedulerID, jobID, authCode string) error
}

// FailureReporter posts the markfailed callback when dispatch fails and no
// sentinel will ever report the outcome.
type FailureReporter interface {
	MarkFailed(ctx context.Context, jobID, authCode string) error
}

// DispatchClaimer deduplicates redelivered submissions.
type DispatchClaimer interface {
	ClaimDispatch(ctx context.Context, jobID string) error
}

// Dispatcher turns one submission message into a scheduler job plus its two
// sentinel jobs.
type Dispatcher struct {
	scheduler Submitter
	callback  FailureReporter
	claimer   DispatchClaimer
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(scheduler Submitter, callback FailureReporter, claimer DispatchClaimer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		scheduler: scheduler,
		callback:  callback,
		claimer:   claimer,
		logger:    logger,
	}
}

// Dispatch processes one submission. Any returned error is final: the job has
// either been handed to the scheduler or reported failed, so the caller
// always acknowledges the message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.SubmissionMessage) error {
	d.logger.Info("Dispatching submission",
		slog.String("job_id", msg.JobID),
		slog.String("script_path", msg.ScriptPath),
	)

	// Claim the dispatch so a redelivered message never submits the same job
	// twice. A lost claim means another consumer already handled it.
	if err := d.claimer.ClaimDispatch(ctx, msg.JobID); err != nil {
		if errors.Is(err, domain.ErrAlreadyDispatched) {
			d.logger.Info("Skipping redelivered submission",
				slog.String("job_id", msg.JobID),
			)
			return nil
		}
		// The claim is a dedup aid, not a correctness gate. On a transient
		// database error, dispatching anyway risks a duplicate cluster job
		// but never loses one.
		d.logger.Warn("Dispatch claim failed, proceeding without dedup",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
	}

	schedulerID, err := d.scheduler.Submit(ctx, msg.ScriptPath)
	if err != nil {
		d.reportFailure(ctx, msg, "submit failed", err)
		return fmt.Errorf("failed to submit job %s: %w", msg.JobID, err)
	}

	// Both sentinels chain onto the primary job. At most one of them ever
	// runs; the scheduler kills the other once the dependency can no longer
	// be satisfied.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.scheduler.SubmitSentinel(gctx, domain.DependencyAfterOK, schedulerID, msg.JobID, msg.AuthCode)
	})
	g.Go(func() error {
		return d.scheduler.SubmitSentinel(gctx, domain.DependencyAfterNotOK, schedulerID, msg.JobID, msg.AuthCode)
	})
	if err := g.Wait(); err != nil {
		d.reportFailure(ctx, msg, "sentinel submission failed", err)
		return fmt.Errorf("failed to submit sentinels for job %s: %w", msg.JobID, err)
	}

	d.logger.Info("Submission dispatched",
		slog.String("job_id", msg.JobID),
		slog.String("scheduler_id", schedulerID),
	)

	return nil
}

// reportFailure marks the job failed through the callback endpoint. Without
// this the job would sit in its queued state forever, since no sentinel
// exists to report on it.
func (d *Dispatcher) reportFailure(ctx context.Context, msg *domain.SubmissionMessage, reason string, cause error) {
	d.logger.Error("Dispatch failed, marking job failed",
		slog.String("job_id", msg.JobID),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)

	if err := d.callback.MarkFailed(ctx, msg.JobID, msg.AuthCode); err != nil {
		d.logger.Error("Failed to mark job failed",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
	}
}
