package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nextslurm/backend/internal/api/domain"
	"github.com/nextslurm/backend/internal/api/dto"
	"github.com/nextslurm/backend/internal/api/model"
	"github.com/nextslurm/backend/internal/api/prepare"
	"github.com/nextslurm/backend/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creationRouter(t *testing.T, store *fakeStore, publisher *fakePublisher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Logger:    logger.NewDefault().Logger,
		Store:     store,
		Publisher: publisher,
		Preparer:  prepare.NewPreparer(t.TempDir(), "http://portal.example.com", logger.NewDefault().Logger),
	})

	r := gin.New()
	r.POST("/api/v1/jobs", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Set("user_role", 0)
		h.CreateJob(c)
	})
	return r
}

func postCreateJob(r *gin.Engine, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validCreateRequest() dto.CreateJobRequest {
	return dto.CreateJobRequest{
		Name:      "align run",
		JobTypeID: "3f0a72e6-9e51-4f3a-8f6d-0d8a3e8b8f01",
		Parameters: []dto.Parameter{
			{Key: "name", Value: "world"},
		},
	}
}

func grantedJobType() *model.JobType {
	return &model.JobType{
		ID:            "3f0a72e6-9e51-4f3a-8f6d-0d8a3e8b8f01",
		Name:          "align",
		Script:        "echo {{name}}",
		CreatedBy:     "user-1",
		HasFileUpload: false,
		ArrayJob:      false,
	}
}

func TestCreateJob_Success(t *testing.T) {
	store := newFakeStore()
	store.jobType = grantedJobType()
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	w := postCreateJob(r, validCreateRequest())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// exactly one row and one queue message per created job
	require.Len(t, store.created, 1)
	require.Len(t, publisher.published, 1)

	job := store.created[0]
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.AuthCode)

	var msg dto.SubmissionMessage
	require.NoError(t, json.Unmarshal(publisher.published[0], &msg))
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, job.AuthCode, msg.AuthCode)
	assert.NotEmpty(t, msg.ScriptPath)
	assert.NotEmpty(t, msg.Directories.Input)
	assert.NotEmpty(t, msg.Directories.Output)

	// the rendered script exists and carries the substituted parameter
	content, err := os.ReadFile(msg.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo world")
	assert.True(t, strings.HasPrefix(string(content), "#!/bin/bash"))
}

func TestCreateJob_FreshAuthCodePerJob(t *testing.T) {
	store := newFakeStore()
	store.jobType = grantedJobType()
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	require.Equal(t, http.StatusCreated, postCreateJob(r, validCreateRequest()).Code)
	require.Equal(t, http.StatusCreated, postCreateJob(r, validCreateRequest()).Code)

	require.Len(t, store.created, 2)
	assert.NotEqual(t, store.created[0].AuthCode, store.created[1].AuthCode)
	assert.NotEqual(t, store.created[0].ID, store.created[1].ID)
}

func TestCreateJob_InvalidBody(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	w := postCreateJob(r, map[string]string{"name": ""})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestCreateJob_InvalidFileID(t *testing.T) {
	store := newFakeStore()
	store.fileValid = false
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	req := validCreateRequest()
	req.FileID = "7f8c9d0e-1a2b-4c3d-8e4f-5a6b7c8d9e0f"
	w := postCreateJob(r, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestCreateJob_JobTypeNotFound(t *testing.T) {
	store := newFakeStore()
	store.access = domain.JobTypeNotFound
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	w := postCreateJob(r, validCreateRequest())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestCreateJob_JobTypeForbidden(t *testing.T) {
	store := newFakeStore()
	store.access = domain.JobTypeForbidden
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	w := postCreateJob(r, validCreateRequest())

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestCreateJob_PublishFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	store.jobType = grantedJobType()
	publisher := &fakePublisher{err: assert.AnError}
	r := creationRouter(t, store, publisher)

	w := postCreateJob(r, validCreateRequest())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// the fake store mirrors the transactional contract: a failed stage
	// leaves no row behind
	assert.Empty(t, store.created)
}

func TestCreateJob_MissingUploadFailsPreparation(t *testing.T) {
	store := newFakeStore()
	jobType := grantedJobType()
	jobType.HasFileUpload = true
	store.jobType = jobType
	publisher := &fakePublisher{}
	r := creationRouter(t, store, publisher)

	req := validCreateRequest()
	req.FileID = "7f8c9d0e-1a2b-4c3d-8e4f-5a6b7c8d9e0f"
	w := postCreateJob(r, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}
