package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotNotFound is returned when no persisted snapshot exists yet.
	ErrSnapshotNotFound = errors.New("workflow: snapshot not found")
	// ErrVerdictUnparsed indicates reviewer text carried no recognizable
	// verdict. The orchestrator treats it as a rejection, never an approval.
	ErrVerdictUnparsed = errors.New("workflow: reviewer verdict not recognized")
	// ErrCancelled reports that the run stopped at a suspension point because
	// the caller's context was cancelled. The persisted snapshot stays
	// resumable.
	ErrCancelled = errors.New("workflow: run cancelled")
	// ErrNotAwaitingHuman is returned when a human decision arrives for a run
	// that is not paused at human review.
	ErrNotAwaitingHuman = errors.New("workflow: run is not awaiting human review")
)

// GenerationError wraps a generation-service failure that survived retries.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("workflow: generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StorageError wraps a blog storage failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("workflow: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError wraps a snapshot or event log serialization/IO failure.
// Persistence failures are always surfaced; swallowing one would corrupt
// resumability.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("workflow: persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
