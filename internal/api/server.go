// Package api exposes the pipeline trigger API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"batteryflow/app"
	"batteryflow/domain/core"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	"batteryflow/internal"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runs is the run service behind the API
type Runs interface {
	Plan() *stage.StagePlan
	Trigger(ctx context.Context, params app.RunParams) (*run.Manifest, error)
	Get(runID core.RunID) (*run.Manifest, error)
	Report(runID core.RunID) ([]byte, error)
}

// Server routes trigger and lookup requests to the run service
type Server struct {
	router   *chi.Mux
	runs     Runs
	gatherer prometheus.Gatherer
	logger   *internal.Logger

	// runCtx bounds triggered runs; request contexts end with the response
	runCtx context.Context
}

// Config holds API server configuration
type Config struct {
	Port string
}

// NewServer creates the router. Triggered runs are bound to runCtx.
func NewServer(runCtx context.Context, runs Runs, gatherer prometheus.Gatherer, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &Server{
		router:   chi.NewRouter(),
		runs:     runs,
		gatherer: gatherer,
		logger:   logger,
		runCtx:   runCtx,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1/dags/{dagID}", func(r chi.Router) {
		r.Use(s.knownDAG)
		r.Get("/", s.handleGetDAG)
		r.Post("/dagRuns", s.handleTriggerRun)
		r.Get("/dagRuns/{runID}", s.handleGetRun)
		r.Get("/dagRuns/{runID}/report", s.handleGetReport)
	})
}

// Start serves on cfg.Port until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting trigger API on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// DAGResponse describes the tasks and edges of a DAG
type DAGResponse struct {
	DAGID       core.DAGID        `json:"dag_id"`
	Description string            `json:"description"`
	Tasks       []stage.StageSpec `json:"tasks"`
	Edges       [][2]core.TaskID  `json:"edges"`
}

// TriggerRequest is the optional body of a trigger call
type TriggerRequest struct {
	Conf app.RunParams `json:"conf"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetDAG(w http.ResponseWriter, r *http.Request) {
	plan := s.runs.Plan()
	writeJSON(w, http.StatusOK, DAGResponse{
		DAGID:       plan.DAGID,
		Description: plan.Description,
		Tasks:       plan.Stages,
		Edges:       plan.Edges(),
	})
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Conf.SampleSize < 0 {
		writeError(w, http.StatusBadRequest, "sample_size must not be negative")
		return
	}

	m, err := s.runs.Trigger(s.runCtx, req.Conf)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Infow("run triggered", "run_id", m.RunID, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.runs.Get(runID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	runID, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	html, err := s.runs.Report(runID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(html)
}

// knownDAG rejects ids other than the served DAG
func (s *Server) knownDAG(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if core.DAGID(chi.URLParam(r, "dagID")) != s.runs.Plan().DAGID {
			writeError(w, http.StatusNotFound, "DAG not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
	case core.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Errorw("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
