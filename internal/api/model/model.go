package model

import (
	"database/sql"
	"time"
)

// Job is one user-submitted unit of work.
type Job struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	JobTypeID string         `db:"job_type_id"`
	FileID    sql.NullString `db:"file_id"`
	CreatedBy string         `db:"created_by"`
	AuthCode  string         `db:"auth_code"`
	Status    string         `db:"status"`
	StartTime sql.NullTime   `db:"start_time"`
	EndTime   sql.NullTime   `db:"end_time"`
	CreatedAt time.Time      `db:"created_at"`
}

// JobType is the script template a job is created from.
type JobType struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	Script        string `db:"script"`
	CreatedBy     string `db:"created_by"`
	HasFileUpload bool   `db:"has_file_upload"`
	ArrayJob      bool   `db:"array_job"`
}

// File is a staged upload owned by a user.
type File struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}
