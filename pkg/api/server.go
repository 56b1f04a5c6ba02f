// Package api exposes the task API: submit a scrape task, poll its
// outcome, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// Solver runs one scrape task end to end.
type Solver interface {
	Solver(ctx context.Context, in task.Input) (*task.Output, error)
}

// JobState tracks a submitted task through its lifetime.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is one submitted task and, eventually, its outcome.
type Job struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	State       JobState        `json:"state"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Server serves the task API. Jobs run asynchronously; submissions return
// immediately with a job id.
type Server struct {
	solver Solver
	log    *logging.Logger

	mu   sync.Mutex
	jobs map[string]*Job

	// runCtx parents every job run; canceling it aborts in-flight tasks
	// at shutdown.
	runCtx context.Context
}

// NewServer creates a task API server.
func NewServer(solver Solver, log *logging.Logger) *Server {
	return &Server{
		solver: solver,
		log:    log,
		jobs:   make(map[string]*Job),
		runCtx: context.Background(),
	}
}

// WithRunContext parents job execution on ctx.
func (s *Server) WithRunContext(ctx context.Context) *Server {
	s.runCtx = ctx
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in task.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	in, err := task.Normalize(in)
	if err != nil {
		respondError(w, http.StatusBadRequest, faults.Reason(err))
		return
	}
	if in.TaskID == "" {
		in.TaskID = uuid.NewString()
	}

	job := &Job{
		ID:          uuid.NewString(),
		TaskID:      in.TaskID,
		State:       JobRunning,
		SubmittedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.log.Info(logging.CategoryAPI, "task_submitted", "task submitted", map[string]any{
		"job_id":  job.ID,
		"task_id": in.TaskID,
	})

	go s.run(job.ID, in)

	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) run(jobID string, in task.Input) {
	out, err := s.solver.Solver(s.runCtx, in)

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	job.FinishedAt = &now
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		return
	}
	job.State = JobSucceeded
	job.Result = json.RawMessage(out.Data)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	job, ok := s.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown job")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Timestamp string `json:"timestamp"`
	}{
		Error:     message,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
