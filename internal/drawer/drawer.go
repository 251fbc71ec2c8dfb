// Package drawer renders a pipeline's stage and job graph as a dot
// document, with jobs colored by status.
package drawer

import (
	"fmt"
	"io"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	colors "gopkg.in/go-playground/colors.v1"
)

// Drawer accumulates jobs and their needs edges, grouped by stage.
type Drawer struct {
	g           graph.Graph[string, string]
	stages      []string
	jobsByStage map[string][]string
	status      map[string]string
}

func New() *Drawer {
	return &Drawer{
		g:           graph.New(graph.StringHash, graph.Directed()),
		jobsByStage: make(map[string][]string),
		status:      make(map[string]string),
	}
}

// AddStage declares a stage; stages render in the order they are added.
func (d *Drawer) AddStage(stage string) {
	for _, s := range d.stages {
		if s == stage {
			return
		}
	}
	d.stages = append(d.stages, stage)
}

// AddJob adds a job vertex to a stage with its (possibly planned) status.
func (d *Drawer) AddJob(stage, job, status string) error {
	if err := d.g.AddVertex(job); err != nil {
		return errors.Wrapf(err, "unable to add vertex %s", job)
	}
	d.AddStage(stage)
	d.jobsByStage[stage] = append(d.jobsByStage[stage], job)
	d.status[job] = status
	return nil
}

// AddNeed adds a needs edge between two jobs.
func (d *Drawer) AddNeed(from, to string) error {
	if err := d.g.AddEdge(from, to); err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", from, to)
	}
	return nil
}

// Draw writes the dot document.
func (d *Drawer) Draw(w io.Writer) error {
	fmt.Fprintln(w, "digraph pipeline {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=filled];")

	for i, stage := range d.stages {
		fmt.Fprintf(w, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(w, "    label=%q;\n", stage)
		jobs := append([]string{}, d.jobsByStage[stage]...)
		sort.Strings(jobs)
		for _, job := range jobs {
			fill, err := statusColor(d.status[job])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "    %q [fillcolor=%q];\n", job, fill)
		}
		fmt.Fprintln(w, "  }")
	}

	// Stage ordering edges keep consecutive clusters left to right.
	for i := 1; i < len(d.stages); i++ {
		prev, cur := d.jobsByStage[d.stages[i-1]], d.jobsByStage[d.stages[i]]
		if len(prev) == 0 || len(cur) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %q -> %q [style=dashed, color=gray];\n", first(prev), first(cur))
	}

	adjacency, err := d.g.AdjacencyMap()
	if err != nil {
		return errors.Wrap(err, "unable to read graph edges")
	}
	froms := make([]string, 0, len(adjacency))
	for from := range adjacency {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		tos := make([]string, 0, len(adjacency[from]))
		for to := range adjacency[from] {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			fmt.Fprintf(w, "  %q -> %q;\n", from, to)
		}
	}

	fmt.Fprintln(w, "}")
	return nil
}

func first(jobs []string) string {
	sorted := append([]string{}, jobs...)
	sort.Strings(sorted)
	return sorted[0]
}

// statusColor maps a status to a fill color, going through the color
// library so every emitted value is a well-formed hex color.
func statusColor(status string) (string, error) {
	var r, g, b uint8
	switch status {
	case "succeeded":
		r, g, b = 46, 204, 113
	case "failed":
		r, g, b = 231, 76, 60
	case "skipped":
		r, g, b = 149, 165, 166
	case "running":
		r, g, b = 241, 196, 15
	default:
		r, g, b = 214, 219, 223
	}
	c, err := colors.RGB(r, g, b)
	if err != nil {
		return "", errors.Wrap(err, "unable to build colour")
	}
	return c.ToHEX().String(), nil
}
