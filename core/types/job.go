// Package types - Job and stage execution types
package types

import "time"

// JobState is the orchestrator state machine state
type JobState string

const (
	StateUploaded  JobState = "UPLOADED"
	StatePlanning  JobState = "PLANNING"
	StateParsing   JobState = "PARSING"
	StateEnriching JobState = "ENRICHING"
	StateCosting   JobState = "COSTING"
	StateCompleted JobState = "COMPLETED"
	StateFailed    JobState = "FAILED"
)

// String returns the string representation
func (s JobState) String() string {
	return string(s)
}

// IsTerminal reports whether the state has no outgoing transitions
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one cost estimation request moving through the pipeline
type Job struct {
	// ID is the opaque stable job identifier
	ID string `json:"job_id" db:"job_id"`

	// UploadReference points at the uploaded IaC bundle
	UploadReference string `json:"upload_reference" db:"upload_reference"`

	// Region is the estimation region
	Region string `json:"region" db:"region"`

	// UsageProfile names the usage profile to apply
	UsageProfile string `json:"usage_profile" db:"usage_profile"`

	// IdempotencyKey deduplicates submissions when set
	IdempotencyKey string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	// CorrelationID threads through every downstream call and log record
	CorrelationID string `json:"correlation_id" db:"correlation_id"`

	// CurrentState is the state machine position
	CurrentState JobState `json:"current_state" db:"current_state"`

	// PreviousState is the state before the last transition
	PreviousState JobState `json:"previous_state,omitempty" db:"previous_state"`

	// RetryCount counts stage retries consumed by this job
	RetryCount int `json:"retry_count" db:"retry_count"`

	// CreatedAt is the submission time
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the last mutation time
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// StartedAt is when PLANNING began
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`

	// CompletedAt is when a terminal state was reached
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// ErrorMessage carries the failing stage's message on FAILED
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// PlanReference points at the published plan document
	PlanReference string `json:"plan_reference,omitempty" db:"plan_reference"`

	// ResultReference points at the persisted result
	ResultReference string `json:"result_reference,omitempty" db:"result_reference"`
}

// StageStatus is the status of one stage attempt
type StageStatus string

const (
	StageRunning StageStatus = "RUNNING"
	StageSuccess StageStatus = "SUCCESS"
	StageFailed  StageStatus = "FAILED"
)

// StageExecution is one attempt of one stage; history is append-only
type StageExecution struct {
	// ID is the row identifier
	ID int64 `json:"id" db:"id"`

	// JobID is the owning job
	JobID string `json:"job_id" db:"job_id"`

	// StageName is the stage (PLANNING, PARSING, ENRICHING, COSTING)
	StageName string `json:"stage_name" db:"stage_name"`

	// AttemptNumber starts at 1 and increments per retry
	AttemptNumber int `json:"attempt_number" db:"attempt_number"`

	// StartedAt is the attempt start
	StartedAt time.Time `json:"started_at" db:"started_at"`

	// CompletedAt is the attempt end
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// DurationMs is the attempt wall time
	DurationMs *int64 `json:"duration_ms,omitempty" db:"duration_ms"`

	// Status is the attempt outcome
	Status StageStatus `json:"status" db:"status"`

	// InputDigest is a stable digest of the stage input
	InputDigest string `json:"input_digest" db:"input_digest"`

	// OutputDigest is a stable digest of the stage output on success
	OutputDigest string `json:"output_digest,omitempty" db:"output_digest"`

	// ErrorMessage carries the failure cause
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
}
