package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"costplan/core/executor"
	"costplan/core/types"
	"costplan/internal/errors"
)

// SourceStore fetches uploaded IaC bundles by reference.
type SourceStore interface {
	Fetch(ctx context.Context, reference string) (map[string][]byte, error)
}

// FileSourceStore reads uploads from a directory per reference.
type FileSourceStore struct {
	root string
}

// NewFileSourceStore creates a source store rooted at dir.
func NewFileSourceStore(root string) *FileSourceStore {
	return &FileSourceStore{root: root}
}

// Fetch reads every file under the referenced upload directory.
func (s *FileSourceStore) Fetch(ctx context.Context, reference string) (map[string][]byte, error) {
	if reference == "" || strings.Contains(reference, "..") || filepath.IsAbs(reference) {
		return nil, errors.Security("upload reference escapes the store")
	}
	dir := filepath.Join(s.root, reference)

	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = data
		return nil
	})
	if os.IsNotExist(err) {
		return nil, errors.NotFound("upload", reference)
	}
	if err != nil {
		return nil, errors.Internal("reading upload", err)
	}
	if len(files) == 0 {
		return nil, errors.NotFound("upload", reference)
	}
	return files, nil
}

// Planner produces the plan document for a job.
type Planner interface {
	Plan(ctx context.Context, job *types.Job) ([]byte, error)
}

// ExecutorPlanner drives the sandboxed executor and waits for the
// resulting plan document.
type ExecutorPlanner struct {
	exec    *executor.Executor
	sources SourceStore
	poll    time.Duration
}

// NewExecutorPlanner creates a planner over the executor.
func NewExecutorPlanner(exec *executor.Executor, sources SourceStore, poll time.Duration) *ExecutorPlanner {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &ExecutorPlanner{exec: exec, sources: sources, poll: poll}
}

// Plan fetches the job's sources, submits an execution, and blocks
// until it reaches a terminal state.
func (p *ExecutorPlanner) Plan(ctx context.Context, job *types.Job) ([]byte, error) {
	files, err := p.sources.Fetch(ctx, job.UploadReference)
	if err != nil {
		return nil, err
	}

	executionID, err := p.exec.Submit(executor.Request{
		JobID: job.ID,
		Files: files,
		Variables: map[string]string{
			"region": job.Region,
		},
	})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.exec.Cancel(executionID)
			return nil, errors.Timeout("plan execution")
		case <-ticker.C:
		}

		exec, err := p.exec.Status(executionID)
		if err != nil {
			return nil, err
		}
		if !exec.Status.IsTerminal() {
			continue
		}

		exec, plan, err := p.exec.Result(executionID)
		if err != nil {
			return nil, err
		}
		if exec.Status != executor.StatusCompleted {
			return nil, planFailure(exec)
		}
		return plan, nil
	}
}

func planFailure(exec executor.Execution) error {
	switch exec.FailureKind {
	case "security_violation":
		return errors.Security(exec.ErrorMessage)
	case "validation_failure":
		return errors.Validation(exec.ErrorMessage)
	case "timeout":
		return errors.Timeout("plan execution")
	case "subprocess_failure":
		return errors.Subprocess(exec.ErrorMessage, nil)
	default:
		return errors.Newf(errors.TypeInternal, "plan execution failed: %s", exec.ErrorMessage)
	}
}
