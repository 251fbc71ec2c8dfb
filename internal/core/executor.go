package core

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// Executor runs individual pipeline steps through the shell.
type Executor struct {
	// Dir is the working directory for every step; empty means the
	// process working directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

func NewExecutor() *Executor {
	return &Executor{}
}

// StepResult is the observed outcome of one step. A non-zero ExitCode is a
// step failure; TimedOut marks steps killed by their deadline.
type StepResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Failed reports whether the step failed.
func (r *StepResult) Failed() bool {
	return r.ExitCode != 0 || r.TimedOut
}

// RunStep executes one step as `sh -c` with the given timeout, capturing
// stdout and stderr combined. The returned error is reserved for
// infrastructure problems (inability to start a process); script failures
// are reported through the result's exit code.
func (e *Executor) RunStep(ctx context.Context, command string, timeout time.Duration, extraEnv ...string) (*StepResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, "sh", "-c", command)
	cmd.Dir = e.Dir
	cmd.Env = append(append(os.Environ(), e.Env...), extraEnv...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := &StepResult{
		Command:  command,
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if stepCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, errors.Wrapf(err, "start step %q", command)
	}
	return res, nil
}
