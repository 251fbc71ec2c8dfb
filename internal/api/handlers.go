package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conveyor/internal/core"
)

const maxPipelineBytes = 1 << 20

type runSummary struct {
	ID        string      `json:"id"`
	Pipeline  string      `json:"pipeline"`
	Branch    string      `json:"branch"`
	Status    core.Status `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Submitted time.Time   `json:"submitted"`
}

type runDetail struct {
	runSummary
	Result *core.RunResult `json:"result,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts pipeline YAML in the request body and queues a run.
// An optional ?branch= selects the branch; the pipeline's primary branch is
// the default.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPipelineBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "cannot read body"})
		return
	}

	spec, err := core.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: err.Error()})
		return
	}

	branch := r.URL.Query().Get("branch")
	if branch == "" {
		branch = spec.Branch()
	}

	s.mu.Lock()
	s.seq++
	run := &Run{
		ID:        fmt.Sprintf("run-%04d", s.seq),
		Pipeline:  spec.Name,
		Branch:    branch,
		Status:    core.StatusPending,
		Submitted: time.Now().UTC(),
		spec:      spec,
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	s.mu.Unlock()

	select {
	case s.queue <- run:
	default:
		s.mu.Lock()
		run.Status = core.StatusFailed
		run.Reason = "run queue full"
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "run queue full"})
		return
	}

	s.log.Info("run queued", "run", run.ID, "pipeline", run.Pipeline, "branch", branch)
	writeJSON(w, http.StatusAccepted, runSummary{
		ID:        run.ID,
		Pipeline:  run.Pipeline,
		Branch:    run.Branch,
		Status:    run.Status,
		Submitted: run.Submitted,
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]runSummary, 0, len(s.order))
	for _, id := range s.order {
		run := s.runs[id]
		out = append(out, runSummary{
			ID:        run.ID,
			Pipeline:  run.Pipeline,
			Branch:    run.Branch,
			Status:    run.Status,
			Reason:    run.Reason,
			Submitted: run.Submitted,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	run, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, apiError{Error: "run not found"})
		return
	}
	detail := runDetail{
		runSummary: runSummary{
			ID:        run.ID,
			Pipeline:  run.Pipeline,
			Branch:    run.Branch,
			Status:    run.Status,
			Reason:    run.Reason,
			Submitted: run.Submitted,
		},
		Result: run.result,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job := chi.URLParam(r, "job")

	s.mu.Lock()
	run, ok := s.runs[id]
	var output string
	found := false
	if ok && run.result != nil {
		if jr := run.result.JobResult(job); jr != nil {
			output = jr.Output()
			found = true
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "run not found"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no result for job"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, output)
}
