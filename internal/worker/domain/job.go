package domain

// Directories mirrors the directory layout prepared at enqueue time. Paths
// are absolute on the shared filesystem both services mount.
type Directories struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Script string `json:"script"`
}

// SubmissionMessage is the queue payload describing one prepared job. It is
// self-sufficient for dispatch: everything the scheduler submission and the
// sentinel commands need travels in the message.
type SubmissionMessage struct {
	JobID       string      `json:"jobId"`
	ScriptPath  string      `json:"scriptPath"`
	Directories Directories `json:"directories"`
	AuthCode    string      `json:"authCode"`

	DeliveryTag uint64 `json:"-"`
}
