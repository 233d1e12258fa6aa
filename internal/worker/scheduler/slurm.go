package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/nextslurm/backend/internal/worker/domain"
)

// Runner executes an external command and returns its combined stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

// Slurm submits batch jobs and their sentinel jobs via the configured submit
// command.
type Slurm struct {
	submitCommand string
	serverURL     string
	timeout       time.Duration
	runner        Runner
	logger        *slog.Logger
}

// Config holds Slurm submission settings.
type Config struct {
	SubmitCommand string
	ServerURL     string
	SubmitTimeout time.Duration
	Runner        Runner
	Logger        *slog.Logger
}

// New creates a Slurm submitter. A nil Runner defaults to ExecRunner.
func New(cfg *Config) *Slurm {
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Slurm{
		submitCommand: cfg.SubmitCommand,
		serverURL:     cfg.ServerURL,
		timeout:       timeout,
		runner:        runner,
		logger:        cfg.Logger,
	}
}

// Submit hands the rendered script to the scheduler and returns the scheduler
// job id parsed from the submit output. The id is the last whitespace-separated
// token of stdout, which holds for both the default "Submitted batch job NNN"
// banner and the --parsable form.
func (s *Slurm) Submit(ctx context.Context, scriptPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.runner.Run(ctx, s.submitCommand, scriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to submit script %s: %w", scriptPath, err)
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", domain.ErrNoSchedulerID
	}
	schedulerID := fields[len(fields)-1]

	s.logger.Info("Script submitted to scheduler",
		slog.String("script_path", scriptPath),
		slog.String("scheduler_id", schedulerID),
	)

	return schedulerID, nil
}

// SubmitSentinel submits a zero-work job chained onto the primary job with the
// given dependency condition. The sentinel's only task is to report the
// outcome back over HTTP: afterok maps to the markcomplete callback and
// afternotok to markfailed. kill-on-invalid-dep makes the scheduler reap the
// sentinel whose condition can no longer be met.
func (s *Slurm) SubmitSentinel(ctx context.Context, dependency, schedulerID, jobID, authCode string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := "markcomplete"
	if dependency == domain.DependencyAfterNotOK {
		endpoint = "markfailed"
	}

	wrap := fmt.Sprintf("curl -X POST -H 'Authorization: %s' '%s/api/jobs/%s/%s'",
		authCode, s.serverURL, jobID, endpoint)

	_, err := s.runner.Run(ctx, s.submitCommand,
		fmt.Sprintf("--dependency=%s:%s", dependency, schedulerID),
		"--kill-on-invalid-dep=yes",
		"--wrap="+wrap,
	)
	if err != nil {
		return fmt.Errorf("failed to submit %s sentinel for job %s: %w", dependency, jobID, err)
	}

	s.logger.Info("Sentinel submitted",
		slog.String("job_id", jobID),
		slog.String("dependency", dependency),
		slog.String("scheduler_id", schedulerID),
	)

	return nil
}
