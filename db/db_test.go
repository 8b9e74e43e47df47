package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"costplan/core/types"
	"costplan/internal/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func jobColumns() []string {
	return []string{
		"job_id", "upload_reference", "region", "usage_profile",
		"idempotency_key", "correlation_id", "current_state", "previous_state",
		"retry_count", "created_at", "updated_at", "started_at", "completed_at",
		"error_message", "plan_reference", "result_reference",
	}
}

func TestJobCreate(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &types.Job{
		ID:              "job-1",
		UploadReference: "upload-1",
		Region:          "us-east-1",
		UsageProfile:    "default",
		CorrelationID:   "corr-1",
		CurrentState:    types.StateUploaded,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobCreateDuplicateIdempotencyKey(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &types.Job{ID: "job-1"})
	require.True(t, errors.IsType(err, errors.TypeConflict))
}

func TestJobGetNotFound(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	_, err := repo.Get(context.Background(), "missing")
	require.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestJobGet(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumns()).AddRow(
		"job-1", "upload-1", "us-east-1", "default",
		"", "corr-1", "PLANNING", "UPLOADED",
		0, now, now, nil, nil,
		"", "", "")
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, types.StatePlanning, job.CurrentState)
	require.Equal(t, types.StateUploaded, job.PreviousState)
}

func TestJobTransition(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	mock.ExpectExec("UPDATE jobs SET current_state").
		WithArgs(types.StatePlanning, types.StateUploaded, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), "job-1", types.StateUploaded, types.StatePlanning)
	require.NoError(t, err)
}

func TestJobTransitionStaleState(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	mock.ExpectExec("UPDATE jobs SET current_state").
		WithArgs(types.StateParsing, types.StatePlanning, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), "job-1", types.StatePlanning, types.StateParsing)
	require.True(t, errors.IsType(err, errors.TypeConflict))
}

func TestStageExecutionBeginAndFinish(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewStageExecutionRepository(pool)

	mock.ExpectQuery("INSERT INTO stage_executions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.Begin(context.Background(), &types.StageExecution{
		JobID:         "job-1",
		StageName:     "PLANNING",
		AttemptNumber: 1,
		StartedAt:     time.Now().UTC(),
		InputDigest:   "abc",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), id)

	mock.ExpectExec("UPDATE stage_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Finish(context.Background(), id, types.StageSuccess, "def", ""))
}

func TestStageExecutionFinishTwice(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewStageExecutionRepository(pool)

	mock.ExpectExec("UPDATE stage_executions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finish(context.Background(), 7, types.StageFailed, "", "boom")
	require.True(t, errors.IsType(err, errors.TypeConflict))
}

func TestResultCreateWriteOnce(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewResultRepository(pool)

	mock.ExpectExec("INSERT INTO results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO results").
		WillReturnError(&pq.Error{Code: "23505"})

	result := &types.Result{
		ID:            "res-1",
		JobID:         "job-1",
		CorrelationID: "corr-1",
		PlanHash:      "abc123",
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), result))
	require.NotEmpty(t, result.ModelJSON)

	err := repo.Create(context.Background(), result)
	require.True(t, errors.IsType(err, errors.TypeImmutability))
}

func TestResultGetByJobID(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewResultRepository(pool)

	cols := []string{"result_id", "job_id", "correlation_id", "plan_hash", "pricing_snapshot", "model", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"res-1", "job-1", "corr-1", "abc123", "snap-1",
		[]byte(`{"currency":"USD"}`), time.Now().UTC())
	mock.ExpectQuery(regexp.QuoteMeta("FROM results WHERE job_id")).
		WithArgs("job-1").
		WillReturnRows(rows)

	result, err := repo.GetByJobID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "res-1", result.ID)
	require.Equal(t, types.Currency("USD"), result.Model.Currency)
}

func TestResultGetNotFound(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewResultRepository(pool)

	cols := []string{"result_id", "job_id", "correlation_id", "plan_hash", "pricing_snapshot", "model", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM results WHERE result_id")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestResultUpdateAndDeleteRefused(t *testing.T) {
	pool, _ := newMockDB(t)
	repo := NewResultRepository(pool)

	require.True(t, errors.IsType(repo.Update(context.Background(), "res-1"), errors.TypeImmutability))
	require.True(t, errors.IsType(repo.Delete(context.Background(), "res-1"), errors.TypeImmutability))
}

func TestAuditAppendAndList(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewAuditRepository(pool)

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &types.AuditEntry{
		Action:        types.AuditPersist,
		ResultID:      "res-1",
		JobID:         "job-1",
		CorrelationID: "corr-1",
		Detail:        []byte(`{"plan_hash":"abc123"}`),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Append(context.Background(), entry))

	cols := []string{"id", "action", "result_id", "job_id", "correlation_id", "detail", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		int64(1), "persist", "res-1", "job-1", "corr-1", []byte(`{}`), time.Now().UTC())
	mock.ExpectQuery("FROM audit_log").
		WithArgs("res-1").
		WillReturnRows(rows)

	entries, err := repo.ListByResult(context.Background(), "res-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, types.AuditPersist, entries[0].Action)
}

func TestJobDeleteTerminalBefore(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM stage_executions").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM results").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM jobs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	removed, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobDeleteTerminalBeforeRollsBackOnError(t *testing.T) {
	pool, mock := newMockDB(t)
	repo := NewJobRepository(pool)

	cutoff := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM stage_executions").
		WithArgs(cutoff).
		WillReturnError(errors.New(errors.TypeInternal, "connection reset"))
	mock.ExpectRollback()

	_, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.TypeInternal))
	require.NoError(t, mock.ExpectationsWereMet())
}
