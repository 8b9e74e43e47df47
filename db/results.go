package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"costplan/core/types"
	"costplan/internal/errors"
)

// ResultRepository persists immutable cost results. Create is the only
// mutation; the job_id unique constraint enforces write-once at the
// database even when two writers race.
type ResultRepository struct {
	pool *sqlx.DB
}

// NewResultRepository creates a result repository.
func NewResultRepository(pool *sqlx.DB) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create persists a result. A second result for the same job is an
// immutability violation.
func (r *ResultRepository) Create(ctx context.Context, result *types.Result) error {
	model, err := json.Marshal(result.Model)
	if err != nil {
		return errors.Internal("serializing cost model", err)
	}
	result.ModelJSON = model

	const query = `
		INSERT INTO results (result_id, job_id, correlation_id, plan_hash, pricing_snapshot, model, created_at)
		VALUES (:result_id, :job_id, :correlation_id, :plan_hash, :pricing_snapshot, :model, :created_at)`

	_, err = r.pool.NamedExecContext(ctx, query, result)
	if isUniqueViolation(err) {
		return errors.Immutability("persisting a second result for a job")
	}
	if err != nil {
		return errors.Internal("inserting result", err)
	}
	return nil
}

// GetByID retrieves a result by its result id.
func (r *ResultRepository) GetByID(ctx context.Context, resultID string) (*types.Result, error) {
	const query = `
		SELECT result_id, job_id, correlation_id, plan_hash, pricing_snapshot, model, created_at
		FROM results WHERE result_id = $1`
	return r.get(ctx, query, resultID)
}

// GetByJobID retrieves the result for a job.
func (r *ResultRepository) GetByJobID(ctx context.Context, jobID string) (*types.Result, error) {
	const query = `
		SELECT result_id, job_id, correlation_id, plan_hash, pricing_snapshot, model, created_at
		FROM results WHERE job_id = $1`
	return r.get(ctx, query, jobID)
}

func (r *ResultRepository) get(ctx context.Context, query, arg string) (*types.Result, error) {
	var result types.Result
	err := r.pool.GetContext(ctx, &result, query, arg)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("result", arg)
	}
	if err != nil {
		return nil, errors.Internal("selecting result", err)
	}
	if err := json.Unmarshal(result.ModelJSON, &result.Model); err != nil {
		return nil, errors.Internal("deserializing cost model", err)
	}
	return &result, nil
}

// List returns persisted results newest first.
func (r *ResultRepository) List(ctx context.Context, limit, offset int) ([]types.Result, error) {
	const query = `
		SELECT result_id, job_id, correlation_id, plan_hash, pricing_snapshot, model, created_at
		FROM results
		ORDER BY created_at DESC, result_id
		LIMIT $1 OFFSET $2`

	var results []types.Result
	if err := r.pool.SelectContext(ctx, &results, query, limit, offset); err != nil {
		return nil, errors.Internal("listing results", err)
	}
	for i := range results {
		if err := json.Unmarshal(results[i].ModelJSON, &results[i].Model); err != nil {
			return nil, errors.Internal("deserializing cost model", err)
		}
	}
	return results, nil
}

// Update always fails; results are write-once.
func (r *ResultRepository) Update(ctx context.Context, resultID string) error {
	return errors.Immutability("update")
}

// Delete always fails; results are write-once.
func (r *ResultRepository) Delete(ctx context.Context, resultID string) error {
	return errors.Immutability("delete")
}
