package core

import (
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"conveyor/internal/bootstrap"
)

// DefaultBranch is used when a pipeline does not name its primary branch.
const DefaultBranch = "main"

// DefaultStepTimeout bounds a single step when the job does not set one.
const DefaultStepTimeout = 5 * time.Minute

// Pipeline is the parsed form of a pipeline file: an ordered list of stages
// and a set of jobs assigned to them. Stages run strictly in declared order;
// jobs inside a stage may run in parallel subject to their needs.
type Pipeline struct {
	Name          string                    `yaml:"pipeline"`
	DefaultBranch string                    `yaml:"default_branch"`
	Stages        []string                  `yaml:"stages"`
	TargetsFile   string                    `yaml:"targets_file"`
	Defaults      Defaults                  `yaml:"defaults"`
	Tools         map[string]bootstrap.Spec `yaml:"tools"`
	Jobs          map[string]*Job           `yaml:"jobs"`
}

// Defaults is setup shared by every job that does not override it
// (the before-script block of the pipeline file).
type Defaults struct {
	BeforeScript []string `yaml:"before_script"`
	Tools        []string `yaml:"tools"`
}

// Job is a unit of execution inside a stage.
type Job struct {
	Name         string     `yaml:"-"`
	Stage        string     `yaml:"stage"`
	Script       []string   `yaml:"script"`
	BeforeScript []string   `yaml:"before_script"`
	Run          *Selection `yaml:"run"`
	Only         []string   `yaml:"only"`
	Except       []string   `yaml:"except"`
	Needs        []string   `yaml:"needs"`
	Tools        []string   `yaml:"tools"`
	Report       string     `yaml:"report"`
	Timeout      Duration   `yaml:"timeout"`
	AllowFailure bool       `yaml:"allow_failure"`
}

// Duration decodes YAML duration strings such as "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// StageJobs returns the jobs assigned to stage, sorted by name so callers
// see a deterministic order.
func (p *Pipeline) StageJobs(stage string) []*Job {
	var jobs []*Job
	for _, j := range p.Jobs {
		if j.Stage == stage {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs
}

// Branch returns the configured primary branch.
func (p *Pipeline) Branch() string {
	if p.DefaultBranch == "" {
		return DefaultBranch
	}
	return p.DefaultBranch
}

// EffectiveBeforeScript resolves the job's before-script against the
// pipeline defaults. A job-level block replaces the shared one entirely.
func (j *Job) EffectiveBeforeScript(d Defaults) []string {
	if len(j.BeforeScript) > 0 {
		return j.BeforeScript
	}
	return d.BeforeScript
}

// EffectiveTools merges the shared tool list with the job's own, preserving
// order and dropping duplicates.
func (j *Job) EffectiveTools(d Defaults) []string {
	seen := make(map[string]struct{})
	var tools []string
	for _, name := range append(append([]string{}, d.Tools...), j.Tools...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tools = append(tools, name)
	}
	return tools
}

// StepTimeout returns the per-step timeout for the job.
func (j *Job) StepTimeout() time.Duration {
	if j.Timeout > 0 {
		return time.Duration(j.Timeout)
	}
	return DefaultStepTimeout
}

// IsTest reports whether the job runs test targets.
func (j *Job) IsTest() bool {
	return j.Run != nil && j.Run.Kind == KindTest
}

// ReportPath returns the JUnit report destination. Test jobs that do not
// set one get a default path, so a report is produced for every test job.
func (j *Job) ReportPath() string {
	if j.Report != "" {
		return j.Report
	}
	if j.IsTest() {
		return "reports/" + j.Name + ".xml"
	}
	return ""
}
