package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"costplan/core/types"
	"costplan/internal/errors"
)

// AuditRepository appends to the audit log. There is no update or
// delete path.
type AuditRepository struct {
	pool *sqlx.DB
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(pool *sqlx.DB) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append records one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *types.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (action, result_id, job_id, correlation_id, detail, created_at)
		VALUES (:action, :result_id, :job_id, :correlation_id, :detail, :created_at)`

	if _, err := r.pool.NamedExecContext(ctx, query, entry); err != nil {
		return errors.Internal("appending audit entry", err)
	}
	return nil
}

// ListByResult returns audit entries for a result, oldest first.
func (r *AuditRepository) ListByResult(ctx context.Context, resultID string) ([]types.AuditEntry, error) {
	const query = `
		SELECT id, action, result_id, job_id, correlation_id, detail, created_at
		FROM audit_log
		WHERE result_id = $1
		ORDER BY id`

	var entries []types.AuditEntry
	if err := r.pool.SelectContext(ctx, &entries, query, resultID); err != nil {
		return nil, errors.Internal("listing audit entries", err)
	}
	return entries, nil
}

// ListByJob returns audit entries for a job, oldest first.
func (r *AuditRepository) ListByJob(ctx context.Context, jobID string) ([]types.AuditEntry, error) {
	const query = `
		SELECT id, action, result_id, job_id, correlation_id, detail, created_at
		FROM audit_log
		WHERE job_id = $1
		ORDER BY id`

	var entries []types.AuditEntry
	if err := r.pool.SelectContext(ctx, &entries, query, jobID); err != nil {
		return nil, errors.Internal("listing audit entries", err)
	}
	return entries, nil
}
