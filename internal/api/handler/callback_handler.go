package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nextslurm/backend/internal/api/domain"
)

// The callback endpoints are invoked by the scheduler side only: the
// generated script reports itself running, and exactly one sentinel job (or
// the dispatch worker on a detected failure) reports the terminal state.
// The per-job authCode in the Authorization header is the sole credential.

// MarkRunning handles POST /api/jobs/:job_id/markrunning
func (h *JobHandler) MarkRunning(c *gin.Context) {
	h.handleStatusCallback(c, domain.JobStatusRunning)
}

// MarkComplete handles POST /api/jobs/:job_id/markcomplete
func (h *JobHandler) MarkComplete(c *gin.Context) {
	h.handleStatusCallback(c, domain.JobStatusComplete)
}

// MarkFailed handles POST /api/jobs/:job_id/markfailed
func (h *JobHandler) MarkFailed(c *gin.Context) {
	h.handleStatusCallback(c, domain.JobStatusFailed)
}

func (h *JobHandler) handleStatusCallback(c *gin.Context, status string) {
	jobID := c.Param("job_id")
	providedAuthCode := c.GetHeader("Authorization")

	actualAuthCode, err := h.store.GetJobAuthCode(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		h.logger.Error("Failed to look up job auth code",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	// Exact comparison; a mismatch means the call is not coming from this
	// job's generated script or sentinels.
	if providedAuthCode == "" || providedAuthCode != actualAuthCode {
		h.logger.Warn("Callback with bad auth code", slog.String("job_id", jobID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if status == domain.JobStatusRunning {
		err = h.store.MarkJobRunning(c.Request.Context(), jobID)
	} else {
		err = h.store.MarkJobTerminal(c.Request.Context(), jobID, status)
	}
	if err != nil {
		h.logger.Error("Failed to update job status",
			slog.String("job_id", jobID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	h.logger.Info("Job status callback applied",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Job with id %s marked as %s", jobID, status),
	})
}
