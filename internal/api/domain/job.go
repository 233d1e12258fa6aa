package domain

import (
	"errors"
)

// Job status values. Transitions are queued -> running -> complete/failed.
// Terminal states are not hard-enforced: a late callback can still overwrite
// an earlier terminal write (last write wins).
const (
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusFailed   = "failed"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobTypeNotFound = errors.New("job type not found")
	ErrInvalidFileID   = errors.New("invalid file id")
)

// JobTypeAccess is the result of resolving a job type for a requesting user.
// The not-found/forbidden distinction drives the HTTP status mapping, so it
// must never be collapsed into a plain boolean.
type JobTypeAccess int

const (
	// JobTypeNotFound means no job type exists with the requested id.
	JobTypeNotFound JobTypeAccess = iota
	// JobTypeForbidden means the job type exists but the requester is not
	// its owner, not a global admin, and not shared with it directly or
	// through an organisation.
	JobTypeForbidden
	// JobTypeGranted means the requester may use the job type.
	JobTypeGranted
)

// RoleAdmin marks a global administrator, who may use any job type.
const RoleAdmin = 1
