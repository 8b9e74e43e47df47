package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"costplan/core/types"
	"costplan/internal/errors"
)

// JobRepository persists jobs and their state transitions.
type JobRepository struct {
	pool *sqlx.DB
}

// NewJobRepository creates a job repository.
func NewJobRepository(pool *sqlx.DB) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a new job. A duplicate idempotency key is a conflict.
func (r *JobRepository) Create(ctx context.Context, job *types.Job) error {
	const query = `
		INSERT INTO jobs (job_id, upload_reference, region, usage_profile,
			idempotency_key, correlation_id, current_state, created_at, updated_at)
		VALUES (:job_id, :upload_reference, :region, :usage_profile,
			NULLIF(:idempotency_key, ''), :correlation_id, :current_state,
			:created_at, :updated_at)`

	_, err := r.pool.NamedExecContext(ctx, query, job)
	if isUniqueViolation(err) {
		return errors.Conflict("job already exists for this idempotency key")
	}
	if err != nil {
		return errors.Internal("inserting job", err)
	}
	return nil
}

// Get retrieves a job by id.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*types.Job, error) {
	const query = `
		SELECT job_id, upload_reference, region, usage_profile,
			COALESCE(idempotency_key, '') AS idempotency_key, correlation_id,
			current_state, previous_state, retry_count, created_at, updated_at,
			started_at, completed_at, error_message, plan_reference, result_reference
		FROM jobs WHERE job_id = $1`

	var job types.Job
	err := r.pool.GetContext(ctx, &job, query, jobID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("job", jobID)
	}
	if err != nil {
		return nil, errors.Internal("selecting job", err)
	}
	return &job, nil
}

// GetByIdempotencyKey finds an existing job for an idempotency key.
func (r *JobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*types.Job, error) {
	const query = `
		SELECT job_id, upload_reference, region, usage_profile,
			COALESCE(idempotency_key, '') AS idempotency_key, correlation_id,
			current_state, previous_state, retry_count, created_at, updated_at,
			started_at, completed_at, error_message, plan_reference, result_reference
		FROM jobs WHERE idempotency_key = $1`

	var job types.Job
	err := r.pool.GetContext(ctx, &job, query, key)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("job", key)
	}
	if err != nil {
		return nil, errors.Internal("selecting job by idempotency key", err)
	}
	return &job, nil
}

// Transition moves a job from one state to another. The expected
// current state is part of the predicate so a lost race fails loudly
// instead of silently double-transitioning.
func (r *JobRepository) Transition(ctx context.Context, jobID string, from, to types.JobState) error {
	const query = `
		UPDATE jobs SET current_state = $1, previous_state = $2, updated_at = now(),
			started_at = CASE WHEN $1 = 'PLANNING' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN now() ELSE completed_at END
		WHERE job_id = $3 AND current_state = $2`

	res, err := r.pool.ExecContext(ctx, query, to, from, jobID)
	if err != nil {
		return errors.Internal("transitioning job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Internal("reading transition result", err)
	}
	if affected == 0 {
		return errors.Newf(errors.TypeConflict,
			"job %s is not in state %s", jobID, from)
	}
	return nil
}

// SetError records the failure message on a job.
func (r *JobRepository) SetError(ctx context.Context, jobID, message string) error {
	const query = `UPDATE jobs SET error_message = $1, updated_at = now() WHERE job_id = $2`
	if _, err := r.pool.ExecContext(ctx, query, message, jobID); err != nil {
		return errors.Internal("recording job error", err)
	}
	return nil
}

// SetPlanReference records where the plan document landed.
func (r *JobRepository) SetPlanReference(ctx context.Context, jobID, reference string) error {
	const query = `UPDATE jobs SET plan_reference = $1, updated_at = now() WHERE job_id = $2`
	if _, err := r.pool.ExecContext(ctx, query, reference, jobID); err != nil {
		return errors.Internal("recording plan reference", err)
	}
	return nil
}

// SetResultReference records the persisted result id.
func (r *JobRepository) SetResultReference(ctx context.Context, jobID, reference string) error {
	const query = `UPDATE jobs SET result_reference = $1, updated_at = now() WHERE job_id = $2`
	if _, err := r.pool.ExecContext(ctx, query, reference, jobID); err != nil {
		return errors.Internal("recording result reference", err)
	}
	return nil
}

// IncrementRetries bumps the job's retry counter.
func (r *JobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	const query = `UPDATE jobs SET retry_count = retry_count + 1, updated_at = now() WHERE job_id = $1`
	if _, err := r.pool.ExecContext(ctx, query, jobID); err != nil {
		return errors.Internal("incrementing job retries", err)
	}
	return nil
}

// DeleteTerminalBefore destroys terminal jobs whose completion predates
// the cutoff, together with their stage executions and results. The
// audit log survives as the record of what existed. Returns the number
// of jobs destroyed.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const expired = `
		SELECT job_id FROM jobs
		WHERE current_state IN ('COMPLETED', 'FAILED') AND completed_at < $1`

	tx, err := r.pool.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Internal("beginning retention sweep", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stage_executions WHERE job_id IN (`+expired+`)`, cutoff); err != nil {
		return 0, errors.Internal("deleting expired stage executions", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE job_id IN (`+expired+`)`, cutoff); err != nil {
		return 0, errors.Internal("deleting expired results", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE current_state IN ('COMPLETED', 'FAILED') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Internal("deleting expired jobs", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Internal("reading sweep result", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Internal("committing retention sweep", err)
	}
	return removed, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
