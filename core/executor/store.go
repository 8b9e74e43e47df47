package executor

import (
	"os"
	"path/filepath"

	"costplan/internal/errors"
)

// PlanStore persists plan documents keyed by execution id.
type PlanStore interface {
	Put(executionID string, planDocument []byte) error
	Get(executionID string) ([]byte, error)
	Delete(executionID string) error
}

// FilePlanStore keeps plan documents on the local filesystem.
type FilePlanStore struct {
	root string
}

// NewFilePlanStore creates a store rooted at dir.
func NewFilePlanStore(root string) (*FilePlanStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, errors.Internal("creating plan store root", err)
	}
	return &FilePlanStore{root: root}, nil
}

// Put implements PlanStore
func (s *FilePlanStore) Put(executionID string, planDocument []byte) error {
	if err := os.WriteFile(s.path(executionID), planDocument, 0o600); err != nil {
		return errors.Internal("writing plan document", err)
	}
	return nil
}

// Get implements PlanStore
func (s *FilePlanStore) Get(executionID string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(executionID))
	if os.IsNotExist(err) {
		return nil, errors.NotFound("plan document", executionID)
	}
	if err != nil {
		return nil, errors.Internal("reading plan document", err)
	}
	return raw, nil
}

// Delete implements PlanStore
func (s *FilePlanStore) Delete(executionID string) error {
	if err := os.Remove(s.path(executionID)); err != nil && !os.IsNotExist(err) {
		return errors.Internal("deleting plan document", err)
	}
	return nil
}

func (s *FilePlanStore) path(executionID string) string {
	return filepath.Join(s.root, executionID+".json")
}
