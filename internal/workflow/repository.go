package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SnapshotStore persists workflow run snapshots.
type SnapshotStore interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// Repository stores the snapshot as a single JSON file. Saves stage into a
// temp file and rename it into place, so the prior snapshot survives any
// partial write.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to the given snapshot path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the snapshot file location.
func (r *Repository) Path() string { return r.path }

// Load reads and validates the persisted snapshot. A missing file returns
// ErrSnapshotNotFound; a snapshot that fails validation is surfaced as a
// PersistenceError rather than repaired.
func (r *Repository) Load() (Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, &PersistenceError{Op: "load", Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Err: err}
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Err: err}
	}
	return snap, nil
}

// Save overwrites the snapshot atomically.
func (r *Repository) Save(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Archive moves a terminal run's snapshot aside so a new run can start while
// the finished run stays inspectable.
func (r *Repository) Archive(runID string) error {
	if _, err := os.Stat(r.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &PersistenceError{Op: "archive", Err: err}
	}
	dir := filepath.Join(filepath.Dir(r.path), "archive")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "archive", Err: err}
	}
	target := filepath.Join(dir, fmt.Sprintf("%s.json", runID))
	if err := os.Rename(r.path, target); err != nil {
		return &PersistenceError{Op: "archive", Err: err}
	}
	return nil
}
