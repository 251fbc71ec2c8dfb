package core

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

var ErrNeedsCycle = errors.New("cycle in job needs")

// JobOrder returns the deterministic execution order of a stage's jobs:
// a stable topological sort of the needs graph, ties broken by job name.
func JobOrder(jobs []*Job) ([]string, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for _, j := range jobs {
		if err := g.AddVertex(j.Name); err != nil {
			return nil, errors.Wrapf(err, "add job %q", j.Name)
		}
	}
	for _, j := range jobs {
		for _, need := range j.Needs {
			if err := g.AddEdge(need, j.Name); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, errors.Wrapf(ErrNeedsCycle, "%q needs %q", j.Name, need)
				}
				return nil, errors.Wrapf(err, "add edge %q -> %q", need, j.Name)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, errors.Wrap(err, "sort stage jobs")
	}
	return order, nil
}

// Waves groups a stage's jobs into execution waves: every job lands in the
// wave after the latest wave containing one of its needs, so jobs in the
// same wave can run in parallel.
func Waves(jobs []*Job) ([][]*Job, error) {
	order, err := JobOrder(jobs)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}

	depth := make(map[string]int, len(jobs))
	maxDepth := 0
	for _, name := range order {
		j := byName[name]
		d := 0
		for _, need := range j.Needs {
			if nd := depth[need] + 1; nd > d {
				d = nd
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]*Job, maxDepth+1)
	for _, name := range order {
		d := depth[name]
		waves[d] = append(waves[d], byName[name])
	}
	return waves, nil
}
