// Package types - Persisted result types
package types

import "time"

// Result is one immutable persisted cost estimation result
type Result struct {
	// ID is the result identifier
	ID string `json:"result_id" db:"result_id"`

	// JobID is the owning job; at most one result exists per job
	JobID string `json:"job_id" db:"job_id"`

	// CorrelationID threads back to the job's request chain
	CorrelationID string `json:"correlation_id" db:"correlation_id"`

	// PlanHash identifies the interpreted plan document
	PlanHash string `json:"plan_hash" db:"plan_hash"`

	// PricingSnapshot identifies the catalog version used
	PricingSnapshot string `json:"pricing_snapshot" db:"pricing_snapshot"`

	// Model is the final cost model payload
	Model FCM `json:"model" db:"-"`

	// ModelJSON is the serialized model as stored
	ModelJSON []byte `json:"-" db:"model"`

	// CreatedAt is the persist time; results are never updated
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditAction names one auditable result-store operation
type AuditAction string

const (
	AuditPersist    AuditAction = "persist"
	AuditCompare    AuditAction = "compare"
	AuditPolicyEval AuditAction = "policy_eval"
	AuditGate       AuditAction = "gate"
)

// AuditEntry is one append-only audit record
type AuditEntry struct {
	// ID is the row identifier
	ID int64 `json:"id" db:"id"`

	// Action is the audited operation
	Action AuditAction `json:"action" db:"action"`

	// ResultID is the subject result, when applicable
	ResultID string `json:"result_id,omitempty" db:"result_id"`

	// JobID is the subject job
	JobID string `json:"job_id,omitempty" db:"job_id"`

	// CorrelationID threads through the request chain
	CorrelationID string `json:"correlation_id" db:"correlation_id"`

	// Detail carries operation-specific context as JSON
	Detail []byte `json:"detail,omitempty" db:"detail"`

	// CreatedAt is the append time
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
