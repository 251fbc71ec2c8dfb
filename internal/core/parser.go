package core

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoStages      = errors.New("pipeline declares no stages")
	ErrEmptyJob      = errors.New("job has neither script nor run")
	ErrUnknownStage  = errors.New("job references undeclared stage")
	ErrUnknownNeed   = errors.New("job needs unknown job")
	ErrCrossStage    = errors.New("job needs a job from another stage")
	ErrBranchOverlap = errors.New("branch listed in both only and except")
)

// Parse decodes pipeline YAML and validates it. Unknown fields are
// rejected so typos in pipeline files surface at load time.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "parse pipeline")
	}

	for name, job := range p.Jobs {
		if job == nil {
			return nil, errors.Errorf("job %q is empty", name)
		}
		job.Name = name
	}
	if p.DefaultBranch == "" {
		p.DefaultBranch = DefaultBranch
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a pipeline file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read pipeline %s", path)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", path)
	}
	return p, nil
}

// Validate checks the pipeline's structural invariants: declared unique
// stages, jobs bound to declared stages, resolvable acyclic needs inside a
// single stage, and consistent branch rules.
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return ErrNoStages
	}
	stages := make(map[string]struct{}, len(p.Stages))
	for _, s := range p.Stages {
		if s == "" {
			return errors.New("empty stage name")
		}
		if _, dup := stages[s]; dup {
			return errors.Errorf("duplicate stage %q", s)
		}
		stages[s] = struct{}{}
	}

	for name, job := range p.Jobs {
		if _, ok := stages[job.Stage]; !ok {
			return errors.Wrapf(ErrUnknownStage, "job %q stage %q", name, job.Stage)
		}
		if len(job.Script) == 0 && job.Run == nil {
			return errors.Wrapf(ErrEmptyJob, "job %q", name)
		}
		for _, need := range job.Needs {
			dep, ok := p.Jobs[need]
			if !ok {
				return errors.Wrapf(ErrUnknownNeed, "job %q needs %q", name, need)
			}
			if dep.Stage != job.Stage {
				return errors.Wrapf(ErrCrossStage, "job %q (stage %q) needs %q (stage %q)",
					name, job.Stage, need, dep.Stage)
			}
			if need == name {
				return errors.Wrapf(ErrNeedsCycle, "job %q needs itself", name)
			}
		}
		for _, b := range job.Only {
			if containsBranch(job.Except, b) {
				return errors.Wrapf(ErrBranchOverlap, "job %q branch %q", name, b)
			}
		}
	}

	// Needs cycles are only visible per stage.
	for _, stage := range p.Stages {
		if _, err := JobOrder(p.StageJobs(stage)); err != nil {
			return errors.Wrapf(err, "stage %q", stage)
		}
	}
	return nil
}
