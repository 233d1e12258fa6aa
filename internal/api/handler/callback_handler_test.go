package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nextslurm/backend/internal/api/domain"
	"github.com/nextslurm/backend/internal/api/model"
	"github.com/nextslurm/backend/internal/api/prepare"
	"github.com/nextslurm/backend/internal/api/storage"
	"github.com/nextslurm/backend/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory JobStore for handler tests.
type fakeStore struct {
	fileValid bool
	fileErr   error

	access  domain.JobTypeAccess
	jobType *model.JobType
	authErr error

	created  []*model.Job
	jobs     map[string]*model.Job
	authCode map[string]string

	running  []string
	terminal map[string]string
	markErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fileValid: true,
		access:    domain.JobTypeGranted,
		jobs:      make(map[string]*model.Job),
		authCode:  make(map[string]string),
		terminal:  make(map[string]string),
	}
}

func (f *fakeStore) ValidateFileID(ctx context.Context, fileID, userID string) (bool, error) {
	return f.fileValid, f.fileErr
}

func (f *fakeStore) AuthorizeJobType(ctx context.Context, jobTypeID, userID string, role int) (domain.JobTypeAccess, *model.JobType, error) {
	if f.authErr != nil {
		return domain.JobTypeNotFound, nil, f.authErr
	}
	if f.access != domain.JobTypeGranted {
		return f.access, nil, nil
	}
	return f.access, f.jobType, nil
}

func (f *fakeStore) CreateJob(ctx context.Context, job *model.Job, stage func(job *model.Job) error) error {
	if stage != nil {
		if err := stage(job); err != nil {
			return err
		}
	}
	f.created = append(f.created, job)
	f.jobs[job.ID] = job
	f.authCode[job.ID] = job.AuthCode
	return nil
}

func (f *fakeStore) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error) {
	var out []model.Job
	for _, job := range f.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (f *fakeStore) GetJobAuthCode(ctx context.Context, jobID string) (string, error) {
	code, ok := f.authCode[jobID]
	if !ok {
		return "", domain.ErrJobNotFound
	}
	return code, nil
}

func (f *fakeStore) MarkJobRunning(ctx context.Context, jobID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.running = append(f.running, jobID)
	return nil
}

func (f *fakeStore) MarkJobTerminal(ctx context.Context, jobID, status string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.terminal[jobID] = status
	return nil
}

// fakePublisher records published queue messages.
type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func callbackRouter(store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Logger:    logger.NewDefault().Logger,
		Store:     store,
		Publisher: &fakePublisher{},
		Preparer:  prepare.NewPreparer("", "", logger.NewDefault().Logger),
	})

	r := gin.New()
	jobs := r.Group("/api/jobs")
	{
		jobs.POST("/:job_id/markrunning", h.MarkRunning)
		jobs.POST("/:job_id/markcomplete", h.MarkComplete)
		jobs.POST("/:job_id/markfailed", h.MarkFailed)
	}
	return r
}

func postCallback(r *gin.Engine, path, authCode string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if authCode != "" {
		req.Header.Set("Authorization", authCode)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusCallbacks_CorrectAuthCode(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		running  bool
		terminal string
	}{
		{name: "markrunning", path: "markrunning", running: true},
		{name: "markcomplete", path: "markcomplete", terminal: domain.JobStatusComplete},
		{name: "markfailed", path: "markfailed", terminal: domain.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.authCode["job-1"] = "secret"
			r := callbackRouter(store)

			w := postCallback(r, "/api/jobs/job-1/"+tt.path, "secret")

			assert.Equal(t, http.StatusOK, w.Code)
			if tt.running {
				assert.Equal(t, []string{"job-1"}, store.running)
			} else {
				assert.Equal(t, tt.terminal, store.terminal["job-1"])
			}
		})
	}
}

func TestStatusCallbacks_BadAuthCode(t *testing.T) {
	tests := []struct {
		name     string
		authCode string
	}{
		{name: "wrong code", authCode: "not-the-secret"},
		{name: "missing header", authCode: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.authCode["job-1"] = "secret"
			r := callbackRouter(store)

			w := postCallback(r, "/api/jobs/job-1/markcomplete", tt.authCode)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			// no mutation happened
			assert.Empty(t, store.terminal)
			assert.Empty(t, store.running)
		})
	}
}

func TestStatusCallbacks_UnknownJob(t *testing.T) {
	store := newFakeStore()
	r := callbackRouter(store)

	w := postCallback(r, "/api/jobs/no-such-job/markfailed", "anything")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, store.terminal)
}

func TestStatusCallbacks_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.authCode["job-1"] = "secret"
	store.markErr = errors.New("connection reset")
	r := callbackRouter(store)

	w := postCallback(r, "/api/jobs/job-1/markcomplete", "secret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusCallbacks_LastWriteWins(t *testing.T) {
	store := newFakeStore()
	store.authCode["job-1"] = "secret"
	r := callbackRouter(store)

	w := postCallback(r, "/api/jobs/job-1/markcomplete", "secret")
	require.Equal(t, http.StatusOK, w.Code)

	// a second terminal callback silently overwrites the first
	w = postCallback(r, "/api/jobs/job-1/markfailed", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.JobStatusFailed, store.terminal["job-1"])
}
