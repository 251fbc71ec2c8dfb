package core

import (
	"strings"
	"time"
)

// Status of a job, stage, or whole run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCanceled  Status = "canceled"
)

// JobResult records one job execution, including skipped jobs so a run
// result always accounts for every job in the pipeline.
type JobResult struct {
	Job      string        `json:"job"`
	Stage    string        `json:"stage"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Steps    []*StepResult `json:"steps,omitempty"`
	LogPath  string        `json:"log_path,omitempty"`
	Report   string        `json:"report,omitempty"`
	Started  time.Time     `json:"started,omitempty"`
	Finished time.Time     `json:"finished,omitempty"`
}

// Output concatenates the captured output of every executed step.
func (r *JobResult) Output() string {
	var b strings.Builder
	for _, s := range r.Steps {
		b.WriteString("$ ")
		b.WriteString(s.Command)
		b.WriteString("\n")
		b.WriteString(s.Output)
		if !strings.HasSuffix(s.Output, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// StageResult aggregates the job results of one stage.
type StageResult struct {
	Stage  string       `json:"stage"`
	Status Status       `json:"status"`
	Jobs   []*JobResult `json:"jobs"`
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID       string         `json:"id"`
	Pipeline string         `json:"pipeline"`
	Branch   string         `json:"branch"`
	Status   Status         `json:"status"`
	Stages   []*StageResult `json:"stages"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
}

// Failed reports whether the run failed.
func (r *RunResult) Failed() bool {
	return r.Status == StatusFailed
}

// JobResult looks up a job's result by name.
func (r *RunResult) JobResult(job string) *JobResult {
	for _, stage := range r.Stages {
		for _, jr := range stage.Jobs {
			if jr.Job == job {
				return jr
			}
		}
	}
	return nil
}
