package handler

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nextslurm/backend/internal/api/domain"
	"github.com/nextslurm/backend/internal/api/dto"
	"github.com/nextslurm/backend/internal/api/model"
	"github.com/nextslurm/backend/internal/api/prepare"
	"github.com/nextslurm/backend/internal/api/storage"
)

// newAuthCode generates the per-job secret accepted by the status-mutation
// callbacks. It is generated exactly once per job and never returned to any
// client.
func newAuthCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateJob handles POST /api/v1/jobs
//
// Runs the full submission pipeline synchronously: authorize the file
// reference and job type, insert the job row, prepare directories, stage
// uploads, render the script, and publish exactly one queue message. The row
// insert and the publish share a transaction; filesystem side effects are
// not rolled back when a later step fails.
func (h *JobHandler) CreateJob(c *gin.Context) {
	userID := c.GetString("user_id")
	role := c.GetInt("user_role")

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	valid, err := h.store.ValidateFileID(c.Request.Context(), req.FileID, userID)
	if err != nil {
		h.logger.Error("Failed to validate file id", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid file_id provided",
		})
		return
	}

	access, jobType, err := h.store.AuthorizeJobType(c.Request.Context(), req.JobTypeID, userID, role)
	if err != nil {
		h.logger.Error("Failed to authorize job type", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}
	switch access {
	case domain.JobTypeNotFound:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown job type",
		})
		return
	case domain.JobTypeForbidden:
		c.JSON(http.StatusForbidden, gin.H{
			"error": "You do not have access to this job type",
		})
		return
	}

	authCode, err := newAuthCode()
	if err != nil {
		h.logger.Error("Failed to generate auth code", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	job := &model.Job{
		ID:        uuid.New().String(),
		Name:      req.Name,
		JobTypeID: req.JobTypeID,
		FileID:    sql.NullString{String: req.FileID, Valid: req.FileID != ""},
		CreatedBy: userID,
		AuthCode:  authCode,
		Status:    domain.JobStatusQueued,
		CreatedAt: time.Now(),
	}

	err = h.store.CreateJob(c.Request.Context(), job, func(job *model.Job) error {
		dirs, err := h.preparer.Setup(userID, job.ID)
		if err != nil {
			return err
		}

		if err := h.preparer.StageFiles(jobType.HasFileUpload, jobType.ArrayJob, req.FileID, dirs); err != nil {
			return err
		}

		params := make([]prepare.Parameter, len(req.Parameters))
		for i, p := range req.Parameters {
			params[i] = prepare.Parameter{Key: p.Key, Value: p.Value}
		}

		scriptPath, err := h.preparer.RenderScript(jobType.Script, params, jobType.ArrayJob, dirs, prepare.ScriptJob{
			ID:       job.ID,
			Name:     job.Name,
			AuthCode: job.AuthCode,
		})
		if err != nil {
			return err
		}

		msg := dto.SubmissionMessage{
			JobID:       job.ID,
			ScriptPath:  scriptPath,
			Directories: dirs,
			AuthCode:    job.AuthCode,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal submission message: %w", err)
		}

		return h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json")
	})
	if err != nil {
		h.logger.Error("Failed to create job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job. Try again later.",
		})
		return
	}

	h.logger.Info("Job created and queued",
		slog.String("job_id", job.ID),
		slog.String("job_type_id", job.JobTypeID),
		slog.String("created_by", userID),
	)

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:     job.ID,
		Name:      job.Name,
		JobTypeID: job.JobTypeID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if job.CreatedBy != c.GetString("user_id") && c.GetInt("user_role") != domain.RoleAdmin {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists the requesting user's jobs with optional status filtering and
// cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		CreatedBy: c.GetString("user_id"),
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = jobToDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func jobToDTO(job *model.Job) dto.JobDTO {
	d := dto.JobDTO{
		JobID:     job.ID,
		Name:      job.Name,
		JobTypeID: job.JobTypeID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartTime.Valid {
		d.StartTime = job.StartTime.Time.Format(time.RFC3339)
	}
	if job.EndTime.Valid {
		d.EndTime = job.EndTime.Time.Format(time.RFC3339)
	}
	return d
}
