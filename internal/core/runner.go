package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"conveyor/internal/bootstrap"
	"conveyor/internal/history"
	"conveyor/internal/report"
	"conveyor/internal/storage"
	"conveyor/pkg/checksum"
)

const defaultWorkers = 4

var (
	styleStage = lipgloss.NewStyle().Bold(true)
	stylePass  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleSkip  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Runner executes pipelines: stages strictly in declared order, jobs inside
// a stage in parallel waves derived from their needs. A failed stage halts
// every stage after it.
type Runner struct {
	executor *Executor
	targets  *Manifest
	logs     *storage.LogStore
	journal  *history.Journal
	tools    *bootstrap.Toolchain
	log      *slog.Logger
	out      io.Writer
	workers  int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithExecutor(e *Executor) RunnerOption {
	return func(r *Runner) { r.executor = e }
}

func WithTargets(m *Manifest) RunnerOption {
	return func(r *Runner) { r.targets = m }
}

func WithLogStore(s *storage.LogStore) RunnerOption {
	return func(r *Runner) { r.logs = s }
}

func WithJournal(j *history.Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

func WithToolchain(t *bootstrap.Toolchain) RunnerOption {
	return func(r *Runner) { r.tools = t }
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.out = w }
}

func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		executor: NewExecutor(),
		log:      slog.Default(),
		out:      io.Discard,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline for the given context and returns the full
// result. The error return is reserved for infrastructure problems; a
// pipeline that merely failed reports that through the result status.
func (r *Runner) Run(ctx context.Context, p *Pipeline, rc RunContext) (*RunResult, error) {
	if rc.RunID == "" {
		rc.RunID = newRunID(p.Name)
	}
	if rc.Branch == "" {
		rc.Branch = p.Branch()
	}

	res := &RunResult{
		ID:       rc.RunID,
		Pipeline: p.Name,
		Branch:   rc.Branch,
		Status:   StatusRunning,
		Started:  time.Now(),
	}
	r.log.Info("run started", "run", rc.RunID, "pipeline", p.Name, "branch", rc.Branch)
	fmt.Fprintf(r.out, "%s %s (branch %s)\n", styleStage.Render("run"), rc.RunID, rc.Branch)

	halted := false
	for _, stage := range p.Stages {
		sr := r.runStage(ctx, p, stage, rc, halted)
		res.Stages = append(res.Stages, sr)
		if sr.Status == StatusFailed {
			halted = true
		}
		if ctx.Err() != nil {
			halted = true
		}
	}

	res.Finished = time.Now()
	switch {
	case ctx.Err() != nil:
		res.Status = StatusCanceled
	case halted:
		res.Status = StatusFailed
	default:
		res.Status = StatusSucceeded
	}

	r.log.Info("run finished", "run", rc.RunID, "status", res.Status,
		"elapsed", res.Finished.Sub(res.Started).Round(time.Millisecond))
	fmt.Fprintf(r.out, "%s %s\n", styleStage.Render("result"), r.badge(res.Status))
	return res, nil
}

func (r *Runner) runStage(ctx context.Context, p *Pipeline, stage string, rc RunContext, halted bool) *StageResult {
	sr := &StageResult{Stage: stage, Status: StatusSucceeded}
	jobs := p.StageJobs(stage)

	if halted {
		sr.Status = StatusSkipped
		if len(jobs) > 0 {
			fmt.Fprintf(r.out, "%s %s\n", styleStage.Render("stage"), stage)
		}
		for _, j := range jobs {
			sr.Jobs = append(sr.Jobs, r.skipJob(j, "earlier stage failed"))
		}
		return sr
	}
	if len(jobs) == 0 {
		return sr
	}

	fmt.Fprintf(r.out, "%s %s\n", styleStage.Render("stage"), stage)

	// Branch gating is decided up front, but gated jobs keep their vertex
	// in the wave graph so a job whose needs name one still schedules; the
	// gated job is skipped in place and blockedBy propagates the skip.
	gated := make(map[string]bool)
	for _, j := range jobs {
		if !j.Eligible(rc.Branch) {
			gated[j.Name] = true
		}
	}

	waves, err := Waves(jobs)
	if err != nil {
		// Validation catches cycles at load time; reaching this is a bug.
		sr.Status = StatusFailed
		for _, j := range jobs {
			sr.Jobs = append(sr.Jobs, r.skipJob(j, err.Error()))
		}
		return sr
	}

	ran := false
	failed := make(map[string]bool)
	skipped := make(map[string]bool)
	for _, wave := range waves {
		// A job's needs always live in earlier waves, so the failed and
		// skipped maps are stable while this wave is in flight.
		var toRun []*Job
		for _, job := range wave {
			if gated[job.Name] {
				skipped[job.Name] = true
				sr.Jobs = append(sr.Jobs, r.skipJob(job, fmt.Sprintf("branch %q excluded by rules", rc.Branch)))
				continue
			}
			if reason, blocked := blockedBy(job, failed, skipped); blocked {
				skipped[job.Name] = true
				sr.Jobs = append(sr.Jobs, r.skipJob(job, reason))
				continue
			}
			toRun = append(toRun, job)
		}
		ran = ran || len(toRun) > 0

		results := make([]*JobResult, len(toRun))
		g := &errgroup.Group{}
		g.SetLimit(r.workers)
		for i, job := range toRun {
			i, job := i, job
			g.Go(func() error {
				results[i] = r.runJob(ctx, p, job, rc)
				return nil
			})
		}
		// Jobs report failure through their result; runJob never returns
		// an error through the group.
		_ = g.Wait()

		for i, jr := range results {
			sr.Jobs = append(sr.Jobs, jr)
			if jr.Status == StatusFailed {
				failed[toRun[i].Name] = true
			}
		}
	}

	for _, jr := range sr.Jobs {
		switch jr.Status {
		case StatusFailed:
			if job := p.Jobs[jr.Job]; job != nil && job.AllowFailure {
				continue
			}
			sr.Status = StatusFailed
		case StatusCanceled:
			if sr.Status != StatusFailed {
				sr.Status = StatusCanceled
			}
		}
	}
	if !ran && sr.Status == StatusSucceeded {
		sr.Status = StatusSkipped
	}
	return sr
}

// blockedBy reports whether a job must be skipped because one of its needs
// did not succeed.
func blockedBy(job *Job, failed, skipped map[string]bool) (string, bool) {
	for _, need := range job.Needs {
		if failed[need] {
			return fmt.Sprintf("needed job %q failed", need), true
		}
		if skipped[need] {
			return fmt.Sprintf("needed job %q was skipped", need), true
		}
	}
	return "", false
}

func (r *Runner) skipJob(j *Job, reason string) *JobResult {
	fmt.Fprintf(r.out, "  %s %s (%s)\n", r.badge(StatusSkipped), j.Name, reason)
	return &JobResult{Job: j.Name, Stage: j.Stage, Status: StatusSkipped, Reason: reason}
}

func (r *Runner) runJob(ctx context.Context, p *Pipeline, job *Job, rc RunContext) *JobResult {
	jr := &JobResult{
		Job:     job.Name,
		Stage:   job.Stage,
		Status:  StatusRunning,
		Report:  job.ReportPath(),
		Started: time.Now(),
	}

	var cases []report.Case
	if jr.Report != "" {
		// Written in a defer so a failing job still leaves its artifact.
		defer func() {
			if err := report.Write(jr.Report, report.Suite{Name: job.Name, Cases: cases}); err != nil {
				r.log.Warn("report not written", "job", job.Name, "error", err)
			}
		}()
	}
	defer func() {
		jr.Finished = time.Now()
		r.persist(job, jr, rc)
		fmt.Fprintf(r.out, "  %s %s (%s)\n", r.badge(jr.Status), job.Name,
			jr.Finished.Sub(jr.Started).Round(time.Millisecond))
	}()

	if tools := job.EffectiveTools(p.Defaults); len(tools) > 0 {
		if r.tools == nil {
			jr.Status = StatusFailed
			jr.Reason = "job requires tools but no toolchain is configured"
			return jr
		}
		if err := r.tools.Ensure(ctx, tools...); err != nil {
			jr.Status = StatusFailed
			jr.Reason = err.Error()
			return jr
		}
	}

	steps, stepCases, err := r.planSteps(p, job)
	if err != nil {
		jr.Status = StatusFailed
		jr.Reason = err.Error()
		return jr
	}

	env := append(append([]string{}, rc.Env...),
		"CONVEYOR_RUN_ID="+rc.RunID,
		"CONVEYOR_BRANCH="+rc.Branch,
		"CONVEYOR_JOB="+job.Name,
	)

	for i, command := range steps {
		if ctx.Err() != nil {
			jr.Status = StatusCanceled
			jr.Reason = ctx.Err().Error()
			return jr
		}

		res, err := r.executor.RunStep(ctx, command, job.StepTimeout(), env...)
		if err != nil {
			jr.Status = StatusFailed
			jr.Reason = err.Error()
			return jr
		}
		jr.Steps = append(jr.Steps, res)

		c := stepCases[i]
		c.Duration = res.Duration
		if res.Failed() {
			c.Failure = res.Output
			if res.TimedOut {
				c.Failure = "step timed out after " + job.StepTimeout().String() + "\n" + res.Output
			}
		}
		cases = append(cases, c)

		if res.Failed() {
			jr.Status = StatusFailed
			if res.TimedOut {
				jr.Reason = fmt.Sprintf("step %q timed out", command)
			} else {
				jr.Reason = fmt.Sprintf("step %q exited with code %d", command, res.ExitCode)
			}
			return jr
		}
	}

	jr.Status = StatusSucceeded
	return jr
}

// planSteps expands a job into the ordered command list and the report case
// skeleton for each command: before-script lines, script lines, then the
// commands of the selected targets.
func (r *Runner) planSteps(p *Pipeline, job *Job) ([]string, []report.Case, error) {
	var steps []string
	var cases []report.Case

	for _, line := range job.EffectiveBeforeScript(p.Defaults) {
		steps = append(steps, line)
		cases = append(cases, report.Case{Name: line, Class: job.Name + ".before_script"})
	}
	for _, line := range job.Script {
		steps = append(steps, line)
		cases = append(cases, report.Case{Name: line, Class: job.Name})
	}
	if job.Run != nil {
		if r.targets == nil {
			return nil, nil, errors.New("job selects targets but no manifest is loaded")
		}
		targets, err := r.targets.Select(job.Run)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "select targets for %q", job.Name)
		}
		for _, t := range targets {
			steps = append(steps, t.Command)
			cases = append(cases, report.Case{Name: t.Name, Class: job.Name})
		}
	}
	return steps, cases, nil
}

// persist saves the job log and appends the journal entry. Both are
// best-effort side effects: their failure is logged, not fatal.
func (r *Runner) persist(job *Job, jr *JobResult, rc RunContext) {
	output := jr.Output()
	logHash := ""
	if r.logs != nil && output != "" {
		path, err := r.logs.Save(rc.RunID, job.Stage, job.Name, []byte(output))
		if err != nil {
			r.log.Warn("log not saved", "job", job.Name, "error", err)
		} else {
			jr.LogPath = path
			logHash = checksum.String(output)
		}
	}
	if r.journal != nil {
		entry := &history.Entry{
			RunID:   rc.RunID,
			Branch:  rc.Branch,
			Stage:   job.Stage,
			Job:     job.Name,
			Status:  string(jr.Status),
			LogHash: logHash,
		}
		if err := r.journal.Append(entry); err != nil {
			r.log.Warn("journal not updated", "job", job.Name, "error", err)
		}
	}
}

func (r *Runner) badge(s Status) string {
	switch s {
	case StatusSucceeded:
		return stylePass.Render("PASS")
	case StatusFailed:
		return styleFail.Render("FAIL")
	case StatusSkipped:
		return styleSkip.Render("SKIP")
	case StatusCanceled:
		return styleFail.Render("CANCELED")
	default:
		return string(s)
	}
}

func newRunID(pipeline string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("run-%s-%s", now.Format("20060102-150405"),
		checksum.String(pipeline+now.String())[:8])
}
