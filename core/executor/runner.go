package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"costplan/internal/errors"
)

// CommandRunner executes one subprocess stage. Implementations must
// honor context cancellation by killing the process.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (stdout []byte, err error)
}

// execRunner runs commands through os/exec.
type execRunner struct{}

// NewCommandRunner returns the os/exec-backed runner.
func NewCommandRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.Bytes(), errors.Timeout(name)
	}
	if err != nil {
		return stdout.Bytes(), errors.Subprocess(name+" failed", err).
			WithContext("stderr", stderr.String())
	}
	return stdout.Bytes(), nil
}

// StageRunner drives the IaC tool through its fixed stage sequence.
type StageRunner struct {
	runner       CommandRunner
	binary       string
	pluginDir    string
	stageTimeout time.Duration
}

// NewStageRunner creates a stage runner for the given tool binary.
func NewStageRunner(runner CommandRunner, binary, pluginDir string, stageTimeout time.Duration) *StageRunner {
	return &StageRunner{
		runner:       runner,
		binary:       binary,
		pluginDir:    pluginDir,
		stageTimeout: stageTimeout,
	}
}

// Init prepares the workspace without network access: no backend, and
// providers come from the pre-staged plugin directory.
func (s *StageRunner) Init(ctx context.Context, dir string, env []string) error {
	args := []string{"init", "-backend=false", "-input=false", "-no-color"}
	if s.pluginDir != "" {
		args = append(args, "-plugin-dir="+s.pluginDir)
	}
	_, err := s.run(ctx, dir, env, args...)
	return err
}

// Validate runs the tool's own configuration validation.
func (s *StageRunner) Validate(ctx context.Context, dir string, env []string) error {
	_, err := s.run(ctx, dir, env, "validate", "-no-color")
	return err
}

// Plan writes the binary plan into the workspace.
func (s *StageRunner) Plan(ctx context.Context, dir string, env []string, variables map[string]string) error {
	args := []string{"plan", "-input=false", "-no-color", "-out=tfplan"}
	for k, v := range variables {
		args = append(args, "-var", k+"="+v)
	}
	_, err := s.run(ctx, dir, env, args...)
	return err
}

// Show renders the binary plan as the JSON plan document.
func (s *StageRunner) Show(ctx context.Context, dir string, env []string) ([]byte, error) {
	return s.run(ctx, dir, env, "show", "-json", "tfplan")
}

func (s *StageRunner) run(ctx context.Context, dir string, env []string, args ...string) ([]byte, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()
	return s.runner.Run(stageCtx, dir, env, s.binary, args...)
}
