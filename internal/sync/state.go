package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BaselineStore persists the last successfully synced remote revision.
// The engine treats it as an opaque get/set collaborator.
type BaselineStore interface {
	// Load returns the last known revision, or "" when none exists.
	Load() (string, error)
	// Save records revision as the new baseline.
	Save(revision string) error
}

// state is the on-disk representation of the sync baseline.
type state struct {
	Commit string `json:"commit"`
}

// FileStore is a BaselineStore backed by a JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the baseline from disk. A missing file is a fresh sync,
// not an error.
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read state file: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("failed to parse state file: %w", err)
	}
	return st.Commit, nil
}

// Save persists the baseline to disk.
func (s *FileStore) Save(revision string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state{Commit: revision}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
