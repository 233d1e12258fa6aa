package handler

import (
	"context"
	"log/slog"

	"github.com/nextslurm/backend/internal/api/domain"
	"github.com/nextslurm/backend/internal/api/model"
	"github.com/nextslurm/backend/internal/api/prepare"
	"github.com/nextslurm/backend/internal/api/storage"
)

// JobStore is the job record store consumed by the handlers.
type JobStore interface {
	ValidateFileID(ctx context.Context, fileID, userID string) (bool, error)
	AuthorizeJobType(ctx context.Context, jobTypeID, userID string, role int) (domain.JobTypeAccess, *model.JobType, error)
	CreateJob(ctx context.Context, job *model.Job, stage func(job *model.Job) error) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	GetJobAuthCode(ctx context.Context, jobID string) (string, error)
	MarkJobRunning(ctx context.Context, jobID string) error
	MarkJobTerminal(ctx context.Context, jobID, status string) error
}

// QueuePublisher publishes submission messages to the durable job queue.
type QueuePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// ScriptPreparer builds the per-job directory bundle and rendered script.
type ScriptPreparer interface {
	Setup(userID, jobID string) (prepare.Directories, error)
	StageFiles(hasFileUpload, arrayJob bool, fileID string, dirs prepare.Directories) error
	RenderScript(template string, params []prepare.Parameter, arrayJob bool, dirs prepare.Directories, job prepare.ScriptJob) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     JobStore
	Publisher QueuePublisher
	Preparer  ScriptPreparer
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     JobStore
	publisher QueuePublisher
	preparer  ScriptPreparer
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		preparer:  deps.Preparer,
	}
}
