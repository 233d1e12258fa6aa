// Package prepare turns a job creation request into the on-disk layout and
// scheduler-ready script that the dispatch worker submits.
package prepare

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Directories is the per-job filesystem bundle. Input, Output and Script are
// exclusive to one job; Unclaimed is the shared staging area uploads land in
// before a job claims them.
type Directories struct {
	Input     string `json:"input"`
	Output    string `json:"output"`
	Script    string `json:"script"`
	Unclaimed string `json:"-"`
}

// Preparer creates job directories and renders job scripts.
type Preparer struct {
	UserDir   string // root under which all per-user job directories live
	ServerURL string // public base URL for the callback endpoints
	Logger    *slog.Logger
}

// NewPreparer creates a Preparer rooted at userDir.
func NewPreparer(userDir, serverURL string, logger *slog.Logger) *Preparer {
	return &Preparer{
		UserDir:   userDir,
		ServerURL: serverURL,
		Logger:    logger,
	}
}

// Setup derives the directory bundle for (userID, jobID) and creates the
// input, output and script directories. Creation is recursive and
// idempotent: directories that already exist are not an error.
func (p *Preparer) Setup(userID, jobID string) (Directories, error) {
	dirs := Directories{
		Input:     filepath.Join(p.UserDir, userID, "input", jobID),
		Output:    filepath.Join(p.UserDir, userID, "output", jobID),
		Script:    filepath.Join(p.UserDir, userID, "script", jobID),
		Unclaimed: filepath.Join(p.UserDir, "unclaimed"),
	}

	for _, dir := range []string{dirs.Input, dirs.Output, dirs.Script} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Directories{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	p.Logger.Info("Job directories created",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
	)

	return dirs, nil
}
