package dto

// Parameter is a single template substitution supplied at creation time.
// Values are spliced into the script literally, without escaping.
type Parameter struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

type CreateJobRequest struct {
	Name       string      `json:"name" binding:"required"`
	JobTypeID  string      `json:"job_type_id" binding:"required,uuid"`
	FileID     string      `json:"file_id" binding:"omitempty,uuid"`
	Parameters []Parameter `json:"parameters"`
}

type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	Name      string `json:"name"`
	JobTypeID string `json:"job_type_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"job_id"`
	Name      string `json:"name"`
	JobTypeID string `json:"job_type_id"`
	Status    string `json:"status"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	CreatedAt string `json:"created_at"`
}
