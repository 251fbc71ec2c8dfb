// Package api exposes the pipeline runner over HTTP: submit a pipeline,
// poll its status, and read job logs. Submitted runs execute asynchronously
// on a bounded in-process worker pool.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"conveyor/internal/core"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 16
)

// Run is one submitted pipeline execution.
type Run struct {
	ID        string
	Pipeline  string
	Branch    string
	Status    core.Status
	Reason    string
	Submitted time.Time

	spec   *core.Pipeline
	result *core.RunResult
}

// Server owns the run registry and the worker pool.
type Server struct {
	log     *slog.Logger
	runner  *core.Runner
	workers int

	mu    sync.Mutex
	seq   int
	runs  map[string]*Run
	order []string
	queue chan *Run
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queue = make(chan *Run, n)
		}
	}
}

func New(runner *core.Runner, opts ...Option) *Server {
	s := &Server{
		log:     slog.Default(),
		runner:  runner,
		workers: defaultWorkers,
		runs:    make(map[string]*Run),
		queue:   make(chan *Run, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/pipelines", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/log/{job}", s.handleJobLog)
	})
	return r
}

// Start runs the worker pool until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case run := <-s.queue:
					s.execute(ctx, run)
				}
			}
		})
	}
	return g.Wait()
}

func (s *Server) execute(ctx context.Context, run *Run) {
	s.mu.Lock()
	run.Status = core.StatusRunning
	s.mu.Unlock()

	res, err := s.runner.Run(ctx, run.spec, core.RunContext{RunID: run.ID, Branch: run.Branch})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		run.Status = core.StatusFailed
		run.Reason = err.Error()
		s.log.Error("run aborted", "run", run.ID, "error", err)
		return
	}
	run.Status = res.Status
	run.result = res
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
