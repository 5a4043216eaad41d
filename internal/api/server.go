// Package api serves the JSON search API and mounts the search page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/sitesearch/internal/engine"
	"github.com/IshaanNene/sitesearch/internal/search"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// SearchService is the part of the SDK engine the API drives.
type SearchService interface {
	Lookup(ctx context.Context, query string, opts search.Options) search.Response
	DefaultOptions() search.Options
	Rebuild(ctx context.Context, seed string) (*engine.Summary, error)
	StopCrawl()
	Stats() map[string]any
}

// Job tracks a background rebuild.
type Job struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Seed       string          `json:"seed,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Summary    *engine.Summary `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Job states.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Server provides the REST API and optional HTML front-end.
type Server struct {
	mux     *http.ServeMux
	port    int
	version string
	svc     SearchService
	logger  *slog.Logger

	// Job tracking
	jobs   map[string]*Job
	jobsMu sync.RWMutex
	jobsWG sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	httpServer *http.Server
}

// NewServer creates a new API server over svc.
func NewServer(port int, version string, svc SearchService, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mux:     http.NewServeMux(),
		port:    port,
		version: version,
		svc:     svc,
		logger:  logger.With("component", "api_server"),
		jobs:    make(map[string]*Job),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.registerRoutes()
	return s
}

// Handle mounts an extra handler, such as the metrics endpoint or the
// search page.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully and stops any rebuild in flight.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close stops background jobs and waits for them.
func (s *Server) Close() {
	s.svc.StopCrawl()
	s.cancel()
	s.jobsWG.Wait()
}

func (s *Server) registerRoutes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Search
	s.mux.HandleFunc("GET /api/search", s.handleSearch)

	// Index management
	s.mux.HandleFunc("POST /api/rebuild", s.handleRebuild)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	// Stats
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// OptionsFromQuery builds search options from q, mode, fields and limit
// URL parameters, falling back to defaults.
func OptionsFromQuery(r *http.Request, defaults search.Options) (search.Options, error) {
	opts := defaults
	q := r.URL.Query()

	if m := q.Get("mode"); m != "" {
		mode, err := search.ParseMode(m)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if f := q.Get("fields"); f != "" {
		fields, err := search.CanonicalFields(strings.Split(f, ","))
		if err != nil {
			return opts, err
		}
		opts.Fields = fields
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("limit must be a non-negative integer, got %q", l)
		}
		opts.Limit = n
	}
	return opts, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	opts, err := OptionsFromQuery(r, s.svc.DefaultOptions())
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp := s.svc.Lookup(r.Context(), r.URL.Query().Get("q"), opts)
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seed string `json:"seed"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}

	s.jobsMu.Lock()
	for _, j := range s.jobs {
		if j.Status == JobRunning {
			s.jobsMu.Unlock()
			s.jsonResponse(w, http.StatusConflict, map[string]string{"error": types.ErrCrawlInProgress.Error(), "job": j.ID})
			return
		}
	}
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		Seed:      body.Seed,
		StartedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.jobsWG.Add(1)
	go s.runRebuild(job)

	s.jsonResponse(w, http.StatusAccepted, s.jobView(job))
}

func (s *Server) runRebuild(job *Job) {
	defer s.jobsWG.Done()
	logger := s.logger.With("job_id", job.ID)
	logger.Info("rebuild started", "seed", job.Seed)

	summary, err := s.svc.Rebuild(s.ctx, job.Seed)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	now := time.Now()
	job.FinishedAt = &now
	job.Summary = summary
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		if !errors.Is(err, types.ErrCrawlInProgress) {
			logger.Error("rebuild failed", "error", err)
		}
		return
	}
	job.Status = JobCompleted
	logger.Info("rebuild finished", "indexed", summary.Indexed)
}

// jobView copies job under the lock for encoding.
func (s *Server) jobView(job *Job) Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return *job
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	s.jobsMu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	var view Job
	if ok {
		view = *job
	}
	s.jobsMu.RUnlock()

	if !ok {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}
