package api

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"costplan/core/orchestrator"
	"costplan/core/store"
	"costplan/core/types"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// jobResponse is the public job representation
type jobResponse struct {
	types.Job

	// Progress is the approximate completion percentage
	Progress int `json:"progress"`
}

// handleSubmitJob accepts a submission and starts the pipeline. A
// repeated idempotency key returns the existing job with 200.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	job, created, err := s.orch.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if created {
		// The pipeline outlives the request.
		runCtx := logging.WithCorrelation(context.Background(), job.CorrelationID)
		go func() {
			if err := s.orch.Run(runCtx, job.ID); err != nil {
				s.logger.Warn("pipeline run ended with error",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}()
		writeJSON(w, jobResponse{Job: *job, Progress: orchestrator.Progress(job.CurrentState)}, http.StatusCreated)
		return
	}
	writeJSON(w, jobResponse{Job: *job, Progress: orchestrator.Progress(job.CurrentState)}, http.StatusOK)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, jobResponse{Job: *job, Progress: orchestrator.Progress(job.CurrentState)}, http.StatusOK)
}

// handleGetJobResult returns the persisted result once the job has
// completed; until then the result does not exist.
func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.CurrentState != types.StateCompleted {
		writeError(w, errors.NotFound("result for job", jobID))
		return
	}

	result, err := s.results.GetByJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

// handleResultMutation rejects every attempt to modify a result.
func (s *Server) handleResultMutation(w http.ResponseWriter, r *http.Request) {
	writeError(w, errors.Immutability(r.Method))
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	results, err := s.results.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"results": results,
		"count":   len(results),
	}, http.StatusOK)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

// compareRequest names the two results to diff
type compareRequest struct {
	BaseResultID string `json:"base_result_id"`
	HeadResultID string `json:"head_result_id"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.BaseResultID == "" || req.HeadResultID == "" {
		writeError(w, errors.Validation("base_result_id and head_result_id are required"))
		return
	}

	cmp, err := s.results.Compare(r.Context(), req.BaseResultID, req.HeadResultID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, cmp, http.StatusOK)
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	var policy store.GatePolicy
	if err := decodeJSON(r, &policy); err != nil {
		writeError(w, err)
		return
	}

	gate, err := s.results.Gate(r.Context(), r.PathValue("id"), policy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, gate, http.StatusOK)
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
