// Package store is the immutable result store.
//
// Results are persisted exactly once per job and never updated or
// deleted afterwards; every persist, comparison, and gate evaluation
// leaves an audit record.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// ResultStore is the persistence surface for results.
type ResultStore interface {
	Create(ctx context.Context, result *types.Result) error
	GetByID(ctx context.Context, resultID string) (*types.Result, error)
	GetByJobID(ctx context.Context, jobID string) (*types.Result, error)
	List(ctx context.Context, limit, offset int) ([]types.Result, error)
}

// AuditLog appends audit records.
type AuditLog interface {
	Append(ctx context.Context, entry *types.AuditEntry) error
}

// Service exposes the result store operations.
type Service struct {
	results ResultStore
	audit   AuditLog
	logger  *zap.Logger
}

// NewService creates a result store service.
func NewService(results ResultStore, audit AuditLog) *Service {
	return &Service{
		results: results,
		audit:   audit,
		logger:  logging.With(zap.String("component", "store")),
	}
}

// Persist writes the result for a completed job. A second persist for
// the same job fails with an immutability violation.
func (s *Service) Persist(ctx context.Context, job *types.Job, model *types.FCM, planHash, pricingSnapshot string) (*types.Result, error) {
	result := &types.Result{
		ID:              uuid.New().String(),
		JobID:           job.ID,
		CorrelationID:   job.CorrelationID,
		PlanHash:        planHash,
		PricingSnapshot: pricingSnapshot,
		Model:           *model,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}

	s.record(ctx, types.AuditPersist, result.ID, job.ID, map[string]string{
		"plan_hash":        planHash,
		"pricing_snapshot": pricingSnapshot,
		"determinism_hash": model.DeterminismHash,
	})
	s.logger.Info("result persisted",
		zap.String("result_id", result.ID),
		zap.String("job_id", job.ID),
		zap.String("determinism_hash", model.DeterminismHash))
	return result, nil
}

// Get retrieves a result by result id.
func (s *Service) Get(ctx context.Context, resultID string) (*types.Result, error) {
	return s.results.GetByID(ctx, resultID)
}

// GetByJob retrieves the result for a job.
func (s *Service) GetByJob(ctx context.Context, jobID string) (*types.Result, error) {
	return s.results.GetByJobID(ctx, jobID)
}

// List returns persisted results newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]types.Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.results.List(ctx, limit, offset)
}

// Compare diffs two persisted results.
func (s *Service) Compare(ctx context.Context, baseResultID, headResultID string) (*Comparison, error) {
	if baseResultID == headResultID {
		return nil, errors.Validation("base and head result ids must differ")
	}
	base, err := s.results.GetByID(ctx, baseResultID)
	if err != nil {
		return nil, err
	}
	head, err := s.results.GetByID(ctx, headResultID)
	if err != nil {
		return nil, err
	}

	cmp := compareModels(base, head)
	s.record(ctx, types.AuditCompare, headResultID, head.JobID, map[string]string{
		"base_result_id": baseResultID,
		"total_delta":    cmp.TotalDelta.String(),
	})
	return cmp, nil
}

// Gate evaluates a policy against a persisted result. A failed gate is
// a verdict, not an error.
func (s *Service) Gate(ctx context.Context, resultID string, policy GatePolicy) (*GateResult, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}

	var baseline *types.Result
	if policy.MaxIncreasePct != nil {
		if policy.BaselineResultID == "" {
			return nil, errors.Validation("max_increase_pct requires baseline_result_id")
		}
		baseline, err = s.results.GetByID(ctx, policy.BaselineResultID)
		if err != nil {
			return nil, err
		}
	}

	gate := evaluateGate(result, baseline, policy)
	s.record(ctx, types.AuditGate, resultID, result.JobID, map[string]interface{}{
		"passed":  gate.Passed,
		"results": gate.Results,
	})
	return gate, nil
}

// record appends an audit entry; audit failures are logged, never
// surfaced, so they cannot undo a completed operation.
func (s *Service) record(ctx context.Context, action types.AuditAction, resultID, jobID string, detail interface{}) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = nil
	}
	entry := &types.AuditEntry{
		Action:        action,
		ResultID:      resultID,
		JobID:         jobID,
		CorrelationID: logging.CorrelationID(ctx),
		Detail:        payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed",
			zap.String("action", string(action)),
			zap.String("result_id", resultID),
			zap.Error(err))
	}
}
