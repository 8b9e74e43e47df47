package executor

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"costplan/internal/errors"
	"costplan/internal/logging"
)

// WorkspaceManager allocates and destroys per-execution directories.
type WorkspaceManager struct {
	root     string
	maxBytes int64
	logger   *zap.Logger
}

// NewWorkspaceManager creates a manager rooted at dir with a byte
// ceiling per workspace.
func NewWorkspaceManager(root string, maxSizeMB int) *WorkspaceManager {
	return &WorkspaceManager{
		root:     root,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		logger:   logging.Logger.With(zap.String("component", "workspace")),
	}
}

// Create allocates a fresh directory keyed by execution id and copies
// the source files in. Filenames that escape the workspace are refused,
// and the byte total is enforced before any subprocess runs.
func (m *WorkspaceManager) Create(executionID string, files map[string][]byte) (string, error) {
	dir := filepath.Join(m.root, executionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Internal("creating workspace", err)
	}

	var total int64
	for name, content := range files {
		if escapesWorkspace(name) {
			m.Destroy(executionID)
			return "", errors.Security("filename escapes workspace: " + name)
		}

		total += int64(len(content))
		if total > m.maxBytes {
			m.Destroy(executionID)
			return "", errors.Newf(errors.TypeValidation,
				"workspace exceeds size ceiling of %d bytes", m.maxBytes)
		}

		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			m.Destroy(executionID)
			return "", errors.Internal("creating workspace subdirectory", err)
		}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			m.Destroy(executionID)
			return "", errors.Internal("writing workspace file", err)
		}
	}
	return dir, nil
}

// Destroy removes the workspace recursively. It is safe to call on
// every exit path, including after a partial create.
func (m *WorkspaceManager) Destroy(executionID string) {
	dir := filepath.Join(m.root, executionID)
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error("workspace removal failed",
			zap.String("execution_id", executionID), zap.Error(err))
		return
	}
	m.logger.Debug("workspace destroyed", zap.String("execution_id", executionID))
}

// Path returns the workspace directory for an execution id.
func (m *WorkspaceManager) Path(executionID string) string {
	return filepath.Join(m.root, executionID)
}

// escapesWorkspace reports whether a relative filename would resolve
// outside its workspace.
func escapesWorkspace(name string) bool {
	if name == "" || filepath.IsAbs(name) {
		return true
	}
	clean := filepath.Clean(name)
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
