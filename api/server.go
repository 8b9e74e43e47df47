// Package api is the HTTP surface of the estimation service.
//
// The API only ingests input, dispatches to the pipeline components,
// and serializes output; it never performs cost logic itself. Public
// routes cover job submission and results, internal routes expose the
// individual pipeline components for tooling and debugging.
package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"costplan/core/executor"
	"costplan/core/orchestrator"
	"costplan/core/store"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// Server is the API server
type Server struct {
	mux      *http.ServeMux
	version  string
	orch     *orchestrator.Orchestrator
	jobs     orchestrator.JobStore
	results  *store.Service
	executor *executor.Executor
	pipeline *PipelineHandler
	logger   *zap.Logger
}

// NewServer creates an API server over the assembled pipeline.
func NewServer(version string, orch *orchestrator.Orchestrator, jobs orchestrator.JobStore,
	results *store.Service, exec *executor.Executor, pipeline *PipelineHandler) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		version:  version,
		orch:     orch,
		jobs:     jobs,
		results:  results,
		executor: exec,
		pipeline: pipeline,
		logger:   logging.With(zap.String("component", "api")),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Public job and result surface
	s.mux.HandleFunc("POST /v1/jobs", s.handleSubmitJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}/result", s.handleGetJobResult)
	s.mux.HandleFunc("PUT /v1/jobs/{id}/result", s.handleResultMutation)
	s.mux.HandleFunc("PATCH /v1/jobs/{id}/result", s.handleResultMutation)
	s.mux.HandleFunc("DELETE /v1/jobs/{id}/result", s.handleResultMutation)

	s.mux.HandleFunc("GET /v1/results", s.handleListResults)
	s.mux.HandleFunc("GET /v1/results/{id}", s.handleGetResult)
	s.mux.HandleFunc("POST /v1/results/compare", s.handleCompare)
	s.mux.HandleFunc("POST /v1/results/{id}/gate", s.handleGate)

	// Internal pipeline component surface
	s.mux.HandleFunc("POST /internal/executions", s.handleExecute)
	s.mux.HandleFunc("GET /internal/executions/{id}", s.handleExecutionStatus)
	s.mux.HandleFunc("GET /internal/executions/{id}/result", s.handleExecutionResult)
	s.mux.HandleFunc("DELETE /internal/executions/{id}", s.handleExecutionCancel)

	s.mux.HandleFunc("POST /internal/interpret", s.pipeline.handleInterpret)
	s.mux.HandleFunc("POST /internal/enrich", s.pipeline.handleEnrich)
	s.mux.HandleFunc("POST /internal/pricing/lookup", s.pipeline.handlePricingLookup)
	s.mux.HandleFunc("GET /internal/usage/profiles", s.pipeline.handleListProfiles)
	s.mux.HandleFunc("POST /internal/usage/annotate", s.pipeline.handleAnnotate)
	s.mux.HandleFunc("POST /internal/cost/compute", s.pipeline.handleCompute)

	// Ops
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler with the correlation middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get("X-Correlation-Id")
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := logging.WithCorrelation(r.Context(), correlationID)
	w.Header().Set("X-Correlation-Id", correlationID)

	start := time.Now()
	s.mux.ServeHTTP(w, r.WithContext(ctx))
	s.logger.Debug("request served",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("correlation_id", correlationID),
		zap.Duration("duration", time.Since(start)))
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe(addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "ok",
		"version": s.version,
	}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps typed domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := string(errors.TypeInternal)
	message := err.Error()

	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		status = domainErr.HTTPStatus()
		code = string(domainErr.Type)
		message = domainErr.Message
	}

	writeJSON(w, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}, status)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errors.TypeValidation, "decoding request body", err)
	}
	return nil
}
