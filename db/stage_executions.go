package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"costplan/core/types"
	"costplan/internal/errors"
)

// StageExecutionRepository records stage attempts. Rows are append-only:
// an attempt is inserted when it starts and finalized exactly once.
type StageExecutionRepository struct {
	pool *sqlx.DB
}

// NewStageExecutionRepository creates a stage execution repository.
func NewStageExecutionRepository(pool *sqlx.DB) *StageExecutionRepository {
	return &StageExecutionRepository{pool: pool}
}

// Begin records the start of a stage attempt and returns its row id.
func (r *StageExecutionRepository) Begin(ctx context.Context, exec *types.StageExecution) (int64, error) {
	const query = `
		INSERT INTO stage_executions (job_id, stage_name, attempt_number, started_at, status, input_digest)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.pool.GetContext(ctx, &id, query,
		exec.JobID, exec.StageName, exec.AttemptNumber, exec.StartedAt, types.StageRunning, exec.InputDigest)
	if err != nil {
		return 0, errors.Internal("inserting stage execution", err)
	}
	return id, nil
}

// Finish finalizes a stage attempt with its outcome.
func (r *StageExecutionRepository) Finish(ctx context.Context, id int64, status types.StageStatus, outputDigest, errorMessage string) error {
	const query = `
		UPDATE stage_executions
		SET completed_at = $1,
			duration_ms = (EXTRACT(EPOCH FROM ($1 - started_at)) * 1000)::BIGINT,
			status = $2, output_digest = $3, error_message = $4
		WHERE id = $5 AND status = $6`

	res, err := r.pool.ExecContext(ctx, query,
		time.Now().UTC(), status, outputDigest, errorMessage, id, types.StageRunning)
	if err != nil {
		return errors.Internal("finalizing stage execution", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Internal("reading stage finalize result", err)
	}
	if affected == 0 {
		return errors.Newf(errors.TypeConflict, "stage execution %d is not running", id)
	}
	return nil
}

// ListByJob returns all attempts for a job, oldest first.
func (r *StageExecutionRepository) ListByJob(ctx context.Context, jobID string) ([]types.StageExecution, error) {
	const query = `
		SELECT id, job_id, stage_name, attempt_number, started_at, completed_at,
			duration_ms, status, input_digest, output_digest, error_message
		FROM stage_executions
		WHERE job_id = $1
		ORDER BY id`

	var execs []types.StageExecution
	if err := r.pool.SelectContext(ctx, &execs, query, jobID); err != nil {
		return nil, errors.Internal("listing stage executions", err)
	}
	return execs, nil
}
