package prepare

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	fileVarPattern = regexp.MustCompile(`\$file\d+`)
	outVarPattern  = regexp.MustCompile(`\$out\d+`)
)

// Parameter is a single {{key}} substitution.
type Parameter struct {
	Key   string
	Value string
}

// ScriptJob carries the job fields the rendered script embeds.
type ScriptJob struct {
	ID       string
	Name     string
	AuthCode string
}

// RenderScript turns a job type's template into the scheduler-ready script
// for one job and writes it to the job's script directory, returning the
// written path. Rendering is deterministic for identical inputs.
//
// The result, top to bottom: the shebang and scheduler directives, the
// "mark running" callback invocation, $outN path assignments, $fileN
// resolution lines, then the parameter-substituted template body. Parameter
// values are substituted literally with no shell escaping; callers own the
// trust decision on template and parameter content.
func (p *Preparer) RenderScript(template string, params []Parameter, arrayJob bool, dirs Directories, job ScriptJob) (string, error) {
	body := strings.ReplaceAll(template, "\r\n", "\n")
	for _, param := range params {
		body = strings.ReplaceAll(body, "{{"+param.Key+"}}", param.Value)
	}

	var lines []string

	outputFile := "slurmout.txt"
	if arrayJob {
		// %a expands to the array task index, one output file per task
		outputFile = "slurmout-%a.txt"
	}
	lines = append(lines,
		"#!/bin/bash",
		fmt.Sprintf("#SBATCH --job-name=%s", job.Name),
		fmt.Sprintf("#SBATCH --output=%s", filepath.Join(dirs.Output, outputFile)),
	)

	// The first instruction the script runs on the compute node reports the
	// job as running.
	lines = append(lines, fmt.Sprintf(
		"curl -s -X POST -H 'Authorization: %s' '%s/api/jobs/%s/markrunning'",
		job.AuthCode, p.ServerURL, job.ID,
	))

	for _, variable := range uniqueMatches(outVarPattern, body) {
		name := strings.TrimPrefix(variable, "$")
		lines = append(lines, fmt.Sprintf("%s=%s", name, filepath.Join(dirs.Output, name)))
	}

	for _, variable := range uniqueMatches(fileVarPattern, body) {
		name := strings.TrimPrefix(variable, "$")
		searchDir := dirs.Input
		if arrayJob {
			searchDir = dirs.Input + "/${SLURM_ARRAY_TASK_ID}"
		}
		// There is only ever one file{N} per input directory, so the first
		// match is the right one regardless of extension.
		lines = append(lines, fmt.Sprintf(
			`%s=$(find "%s" -type f -name "%s"* -print -quit)`,
			name, searchDir, name,
		))
	}

	lines = append(lines, body)
	script := strings.Join(lines, "\n")

	scriptPath := filepath.Join(dirs.Script, "script.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write job script: %w", err)
	}

	p.Logger.Info("Job script rendered",
		slog.String("job_id", job.ID),
		slog.String("script_path", scriptPath),
	)

	return scriptPath, nil
}

// uniqueMatches returns the pattern's matches in first-occurrence order with
// duplicates removed.
func uniqueMatches(pattern *regexp.Regexp, s string) []string {
	seen := make(map[string]struct{})
	var matches []string
	for _, match := range pattern.FindAllString(s, -1) {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		matches = append(matches, match)
	}
	return matches
}
