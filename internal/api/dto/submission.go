package dto

import "github.com/nextslurm/backend/internal/api/prepare"

// SubmissionMessage is the only object crossing the queue boundary. It is
// fully self-sufficient: the dispatch worker submits the job from this
// message alone, with no further database lookups.
type SubmissionMessage struct {
	JobID       string              `json:"jobId"`
	ScriptPath  string              `json:"scriptPath"`
	Directories prepare.Directories `json:"directories"`
	AuthCode    string              `json:"authCode"`
}
