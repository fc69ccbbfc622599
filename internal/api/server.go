// Package api provides the HTTP and WebSocket server for submitting
// simulation jobs and following their progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/unitsim/internal/config"
	"github.com/atlas-desktop/unitsim/internal/events"
	"github.com/atlas-desktop/unitsim/internal/model"
	"github.com/atlas-desktop/unitsim/internal/observability"
	"github.com/atlas-desktop/unitsim/internal/orchestrator"
	"github.com/atlas-desktop/unitsim/internal/workers"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// JobStatus is the lifecycle state of a simulation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job tracks one submitted model.
type Job struct {
	ID          string                 `json:"id"`
	Status      JobStatus              `json:"status"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	Progress    *orchestrator.Progress `json:"progress,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Result      *types.Results         `json:"result,omitempty"`

	cancel context.CancelFunc
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server is the HTTP/WebSocket API server
type Server struct {
	mu           sync.RWMutex
	logger       *zap.Logger
	config       config.ServerConfig
	router       *mux.Router
	handler      http.Handler
	httpServer   *http.Server
	hub          *Hub
	bus          *events.Bus
	pool         *workers.Pool
	orchestrator *orchestrator.Orchestrator
	metrics      *observability.Metrics
	jobs         map[string]*Job
}

// NewServer creates a new API server. The pool must already be started.
// A nil metrics gets a private registry.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, orch *orchestrator.Orchestrator, pool *workers.Pool, metrics *observability.Metrics) *Server {
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = "/ws"
	}
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	s := &Server{
		logger:       logger,
		config:       cfg,
		router:       mux.NewRouter(),
		hub:          NewHub(logger),
		bus:          events.NewBus(logger, events.BusConfig{BufferSize: cfg.EventBuffer}),
		pool:         pool,
		orchestrator: orch,
		metrics:      metrics,
		jobs:         make(map[string]*Job),
	}

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.bus.SubscribeAll(s.forwardToHub)

	go s.hub.Run()
	return s
}

var hubMessageTypes = map[events.EventType]MessageType{
	events.EventJobQueued:    MsgTypeQueued,
	events.EventJobStarted:   MsgTypeStarted,
	events.EventJobProgress:  MsgTypeProgress,
	events.EventJobCompleted: MsgTypeComplete,
	events.EventJobFailed:    MsgTypeFailed,
	events.EventJobCancelled: MsgTypeFailed,
}

// forwardToHub relays job events to websocket subscribers.
func (s *Server) forwardToHub(e events.Event) error {
	msgType, ok := hubMessageTypes[e.Type]
	if !ok {
		return fmt.Errorf("no websocket message for event %q", e.Type)
	}
	s.hub.PublishJobEvent(e.JobID, msgType, e.Payload)
	return nil
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/simulations", s.handleListSimulations).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations", s.handleSubmitSimulation).Methods("POST")
	s.router.HandleFunc("/api/v1/simulations/{id}", s.handleGetSimulation).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}/trajectories", s.handleGetTrajectories).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}/cancel", s.handleCancelSimulation).Methods("POST")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS)
}

// Handler returns the routed handler wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub exposes the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Events exposes the job event bus.
func (s *Server) Events() *events.Bus {
	return s.bus
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting API server", zap.String("addr", addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels running jobs, closes websocket clients and shuts the HTTP
// server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.Status.finished() {
			job.cancel()
		}
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.bus.Close()
	s.hub.Close()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now().Unix(),
		"jobs":    s.pool.Stats(),
		"events":  s.bus.Stats(),
		"clients": s.hub.ClientCount(),
	})
}

// handleSubmitSimulation validates a model document and queues it.
func (s *Server) handleSubmitSimulation(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	m, err := model.LoadReader(body, "json")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_model", err.Error())
		return
	}
	m.Source = "api"

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          uuid.New().String(),
		Status:      JobQueued,
		SubmittedAt: time.Now().UTC(),
		cancel:      cancel,
	}

	// Held across submission so the queued event precedes the worker's
	// started event.
	s.mu.Lock()
	s.jobs[job.ID] = job
	err = s.pool.SubmitFunc(func(poolCtx context.Context) error {
		runCtx, stop := context.WithCancel(poolCtx)
		defer stop()
		defer context.AfterFunc(ctx, stop)()
		return s.runJob(runCtx, job, m)
	})
	if err != nil {
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		cancel()
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	s.bus.Publish(events.NewEvent(events.EventJobQueued, job.ID, map[string]interface{}{
		"id":     job.ID,
		"status": JobQueued,
	}))
	s.mu.Unlock()
	s.metrics.JobsSubmitted.Inc()

	s.logger.Info("Simulation queued",
		zap.String("id", job.ID),
		zap.Int("assets", len(m.Assets)),
		zap.Int("runs", m.Simulation.NRuns),
	)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     job.ID,
		"status": JobQueued,
	})
}

// runJob executes a queued job on a pool worker.
func (s *Server) runJob(ctx context.Context, job *Job, m *types.Model) error {
	defer job.cancel()

	now := time.Now().UTC()
	s.mu.Lock()
	if job.Status != JobQueued {
		s.mu.Unlock()
		return nil
	}
	job.Status = JobRunning
	job.StartedAt = &now
	s.mu.Unlock()

	s.metrics.JobsRunning.Inc()
	defer s.metrics.JobsRunning.Dec()
	s.bus.Publish(events.NewEvent(events.EventJobStarted, job.ID, map[string]interface{}{
		"id":     job.ID,
		"status": JobRunning,
	}))

	results, err := s.orchestrator.Run(ctx, m, func(p orchestrator.Progress) {
		s.mu.Lock()
		job.Progress = &p
		s.mu.Unlock()
		s.bus.Publish(events.NewEvent(events.EventJobProgress, job.ID, map[string]interface{}{
			"id":       job.ID,
			"progress": p,
		}))
	})

	finished := time.Now().UTC()
	s.mu.Lock()
	job.FinishedAt = &finished
	switch {
	case err == nil:
		job.Status = JobCompleted
		job.Result = results
	case ctx.Err() != nil:
		job.Status = JobCancelled
		job.Error = err.Error()
	default:
		job.Status = JobFailed
		job.Error = err.Error()
	}
	status := job.Status
	s.mu.Unlock()

	s.metrics.JobsCompleted.WithLabelValues(string(status)).Inc()

	if err != nil {
		s.logger.Error("Simulation failed", zap.String("id", job.ID), zap.String("status", string(status)), zap.Error(err))
		eventType := events.EventJobFailed
		if status == JobCancelled {
			eventType = events.EventJobCancelled
		}
		s.bus.Publish(events.NewEvent(eventType, job.ID, map[string]interface{}{
			"id":     job.ID,
			"status": status,
			"error":  err.Error(),
		}))
		return err
	}

	s.logger.Info("Simulation complete", zap.String("id", job.ID), zap.Duration("elapsed", finished.Sub(now)))
	s.bus.Publish(events.NewEvent(events.EventJobCompleted, job.ID, map[string]interface{}{
		"id":     job.ID,
		"status": status,
	}))
	return nil
}

// handleListSimulations lists jobs without their results.
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snap := *job
		snap.Result = nil
		jobs = append(jobs, snap)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": jobs,
		"count":       len(jobs),
	})
}

// handleGetSimulation returns job status and, once complete, the results.
func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	job, ok := s.snapshot(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "simulation not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetTrajectories returns only the trajectory section of a result.
func (s *Server) handleGetTrajectories(w http.ResponseWriter, r *http.Request) {
	job, ok := s.snapshot(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "simulation not found")
		return
	}
	if job.Result == nil {
		writeError(w, http.StatusConflict, "not_complete", fmt.Sprintf("simulation is %s", job.Status))
		return
	}
	writeJSON(w, http.StatusOK, job.Result.Trajectories)
}

// handleCancelSimulation cancels a queued or running job.
func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", "simulation not found")
		return
	}
	if job.Status.finished() {
		status := job.Status
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "not_running", fmt.Sprintf("simulation is %s", status))
		return
	}
	if job.Status == JobQueued {
		now := time.Now().UTC()
		job.Status = JobCancelled
		job.FinishedAt = &now
		s.metrics.JobsCompleted.WithLabelValues(string(JobCancelled)).Inc()
		s.bus.Publish(events.NewEvent(events.EventJobCancelled, id, map[string]interface{}{
			"id":     id,
			"status": JobCancelled,
		}))
	}
	job.cancel()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": JobCancelled,
	})
}

func (s *Server) snapshot(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
