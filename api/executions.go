package api

import (
	"net/http"

	"costplan/core/executor"
)

// handleExecute submits a sandboxed plan execution and returns 202
// with the execution id; the caller polls for the outcome.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	executionID, err := s.executor.Submit(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"execution_id": executionID,
		"status":       executor.StatusPending,
	}, http.StatusAccepted)
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	exec, err := s.executor.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, exec, http.StatusOK)
}

// handleExecutionResult returns the plan document of a completed
// execution. A non-terminal execution is a conflict; a failed one
// returns its terminal state without a plan.
func (s *Server) handleExecutionResult(w http.ResponseWriter, r *http.Request) {
	exec, plan, err := s.executor.Result(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if exec.Status != executor.StatusCompleted {
		writeJSON(w, exec, http.StatusOK)
		return
	}
	writeJSON(w, map[string]interface{}{
		"execution": exec,
		"plan":      jsonRaw(plan),
	}, http.StatusOK)
}

// handleExecutionCancel kills a running execution or disposes of a
// terminal one, including its plan artifact.
func (s *Server) handleExecutionCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.executor.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
