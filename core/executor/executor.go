// Package executor runs IaC plan generation inside sandboxed, isolated
// workspaces.
//
// Submissions go through a FIFO queue consumed by a fixed worker pool.
// Every execution gets a fresh workspace, static validation, short-lived
// credentials, hard per-stage timeouts, and a wall-clock ceiling; the
// workspace is destroyed on every exit path.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"costplan/internal/config"
	"costplan/internal/errors"
	"costplan/internal/logging"
	"costplan/internal/metrics"
)

// ExecutionStatus is the lifecycle state of one execution
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusTimeout   ExecutionStatus = "TIMEOUT"
	StatusKilled    ExecutionStatus = "KILLED"
)

// IsTerminal reports whether the status has no further transitions
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout || s == StatusKilled
}

// Request is one plan execution submission
type Request struct {
	// JobID links the execution to its owning job
	JobID string `json:"job_id"`

	// Files are the IaC sources, keyed by workspace-relative path
	Files map[string][]byte `json:"files"`

	// Variables are passed to the plan stage
	Variables map[string]string `json:"variables,omitempty"`

	// CredentialReference is the assume-role reference, if any
	CredentialReference string `json:"credential_reference,omitempty"`
}

// Execution is the observable state of one execution
type Execution struct {
	// ID is the execution identifier
	ID string `json:"execution_id"`

	// JobID is the owning job
	JobID string `json:"job_id"`

	// Status is the lifecycle state
	Status ExecutionStatus `json:"status"`

	// FailureKind classifies a failure when terminal and unsuccessful
	FailureKind string `json:"failure_kind,omitempty"`

	// ErrorMessage carries the failure detail
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt is when a worker picked the execution up
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the execution reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs is the wall time of the execution
	DurationMs int64 `json:"duration_ms,omitempty"`
}

type executionState struct {
	Execution
	request Request
	cancel  context.CancelFunc
	killed  bool
}

// Executor owns the queue, the workers, and the execution registry.
type Executor struct {
	cfg        config.ExecutorConfig
	workspaces *WorkspaceManager
	validator  *Validator
	broker     *CredentialBroker
	stages     *StageRunner
	store      PlanStore
	logger     *zap.Logger

	mu         sync.RWMutex
	executions map[string]*executionState
	queue      chan string
	wg         sync.WaitGroup
}

// New creates an executor. Start must be called before submissions run.
func New(cfg config.ExecutorConfig, workspaces *WorkspaceManager, validator *Validator, broker *CredentialBroker, stages *StageRunner, store PlanStore) *Executor {
	return &Executor{
		cfg:        cfg,
		workspaces: workspaces,
		validator:  validator,
		broker:     broker,
		stages:     stages,
		store:      store,
		logger:     logging.Logger.With(zap.String("component", "executor")),
		executions: make(map[string]*executionState),
		queue:      make(chan string, 1024),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (e *Executor) Start(ctx context.Context) {
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.logger.Info("executor started", zap.Int("workers", workers))
}

// Wait blocks until every worker has exited.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Submit queues a new execution and returns its id with status PENDING.
func (e *Executor) Submit(req Request) (string, error) {
	if len(req.Files) == 0 {
		return "", errors.Validation("submission carries no source files")
	}

	id := uuid.NewString()
	state := &executionState{
		Execution: Execution{ID: id, JobID: req.JobID, Status: StatusPending},
		request:   req,
	}

	e.mu.Lock()
	e.executions[id] = state
	e.mu.Unlock()

	select {
	case e.queue <- id:
		metrics.ExecutorQueueDepth.Inc()
		return id, nil
	default:
		e.mu.Lock()
		delete(e.executions, id)
		e.mu.Unlock()
		return "", errors.New(errors.TypeConflict, "execution queue is full")
	}
}

// Status returns the observable state of an execution.
func (e *Executor) Status(executionID string) (Execution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state, ok := e.executions[executionID]
	if !ok {
		return Execution{}, errors.NotFound("execution", executionID)
	}
	return state.Execution, nil
}

// Result returns the plan document of a terminal execution. Calling it
// before the execution finishes is a conflict.
func (e *Executor) Result(executionID string) (Execution, []byte, error) {
	exec, err := e.Status(executionID)
	if err != nil {
		return Execution{}, nil, err
	}
	if !exec.Status.IsTerminal() {
		return Execution{}, nil, errors.New(errors.TypeConflict, "execution has not finished")
	}
	if exec.Status != StatusCompleted {
		return exec, nil, nil
	}

	plan, err := e.store.Get(executionID)
	if err != nil {
		return Execution{}, nil, err
	}
	return exec, plan, nil
}

// Cancel marks an execution KILLED. A running worker observes the
// cancellation and terminates its subprocess.
func (e *Executor) Cancel(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.executions[executionID]
	if !ok {
		return errors.NotFound("execution", executionID)
	}
	if state.Status.IsTerminal() {
		return errors.New(errors.TypeConflict, "execution already finished")
	}

	state.killed = true
	if state.cancel != nil {
		state.cancel()
	}
	if state.Status == StatusPending {
		finalize(state, StatusKilled, "", "cancelled before start")
	}
	return nil
}

// Delete removes an execution. A running one is killed first; a
// terminal one is dropped from the registry together with its
// published plan document.
func (e *Executor) Delete(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.executions[executionID]
	if !ok {
		return errors.NotFound("execution", executionID)
	}

	if !state.Status.IsTerminal() {
		state.killed = true
		if state.cancel != nil {
			state.cancel()
		}
		if state.Status == StatusPending {
			finalize(state, StatusKilled, "", "cancelled before start")
		}
		return nil
	}

	if err := e.store.Delete(executionID); err != nil {
		return err
	}
	delete(e.executions, executionID)
	return nil
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			metrics.ExecutorQueueDepth.Dec()
			e.runExecution(ctx, id)
		}
	}
}

func (e *Executor) runExecution(parent context.Context, executionID string) {
	e.mu.Lock()
	state, ok := e.executions[executionID]
	if !ok || state.Status != StatusPending {
		e.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	state.Status = StatusRunning
	state.StartedAt = &now

	// Wall-clock ceiling over every stage.
	ctx, cancel := context.WithTimeout(parent, e.cfg.MaxExecutionTime)
	state.cancel = cancel
	req := state.request
	e.mu.Unlock()
	defer cancel()

	log := e.logger.With(
		zap.String("execution_id", executionID),
		zap.String("job_id", req.JobID))

	err := e.execute(ctx, executionID, req, log)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case err == nil:
		finalize(state, StatusCompleted, "", "")
		log.Info("execution completed", zap.Int64("duration_ms", state.DurationMs))
	case state.killed:
		finalize(state, StatusKilled, "", "cancelled")
		log.Warn("execution killed")
	case errors.IsType(err, errors.TypeTimeout) || ctx.Err() == context.DeadlineExceeded:
		finalize(state, StatusTimeout, "timeout", err.Error())
		log.Warn("execution timed out")
	default:
		finalize(state, StatusFailed, failureKind(err), err.Error())
		log.Warn("execution failed", zap.String("failure_kind", state.FailureKind), zap.Error(err))
	}
}

func (e *Executor) execute(ctx context.Context, executionID string, req Request, log *zap.Logger) error {
	dir, err := e.workspaces.Create(executionID, req.Files)
	if err != nil {
		return err
	}
	defer e.workspaces.Destroy(executionID)

	violations, err := e.validator.ValidateDir(dir)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		v := violations[0]
		return errors.Security(fmt.Sprintf("%s at %s:%d: %s", v.Rule, v.File, v.Line, v.Detail)).
			WithContext("violations", len(violations))
	}

	env, err := e.broker.Resolve(ctx, req.CredentialReference)
	if err != nil {
		return err
	}

	if err := e.stages.Init(ctx, dir, env); err != nil {
		return err
	}
	if err := e.stages.Validate(ctx, dir, env); err != nil {
		return err
	}
	if err := e.stages.Plan(ctx, dir, env, req.Variables); err != nil {
		return err
	}
	plan, err := e.stages.Show(ctx, dir, env)
	if err != nil {
		return err
	}

	if err := e.store.Put(executionID, plan); err != nil {
		return err
	}
	log.Debug("plan document published", zap.Int("bytes", len(plan)))
	return nil
}

func finalize(state *executionState, status ExecutionStatus, kind, message string) {
	now := time.Now().UTC()
	state.Status = status
	state.FailureKind = kind
	state.ErrorMessage = message
	state.CompletedAt = &now
	if state.StartedAt != nil {
		state.DurationMs = now.Sub(*state.StartedAt).Milliseconds()
	}
	state.request = Request{}
	state.cancel = nil
}

// failureKind maps the error taxonomy onto the executor's failure names.
func failureKind(err error) string {
	switch errors.TypeOf(err) {
	case errors.TypeSecurity:
		return "security_violation"
	case errors.TypeValidation:
		return "validation_failure"
	case errors.TypeTimeout:
		return "timeout"
	case errors.TypeSubprocess:
		return "subprocess_failure"
	default:
		return "internal_error"
	}
}
