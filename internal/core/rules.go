package core

// RunContext carries the per-run inputs that gate and identify a pipeline
// execution: the branch being built and the run identifier used for logs
// and journal entries.
type RunContext struct {
	RunID  string
	Branch string
	Env    []string
}

// Eligible reports whether the job should run for the given branch.
//
// Semantics: an `only` list restricts the job to the named branches; an
// `except` list excludes the named branches. Both empty means the job
// always runs. A branch matching both lists does not run (validation
// rejects that configuration up front).
func (j *Job) Eligible(branch string) bool {
	if containsBranch(j.Except, branch) {
		return false
	}
	if len(j.Only) > 0 && !containsBranch(j.Only, branch) {
		return false
	}
	return true
}

func containsBranch(branches []string, branch string) bool {
	for _, b := range branches {
		if b == branch {
			return true
		}
	}
	return false
}
