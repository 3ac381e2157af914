package storage

import "fmt"

// StorageError represents a local filesystem failure. It is fatal for a run:
// it points at the environment, not at the remote service.
type StorageError struct {
	Op   string // The operation that failed (e.g., "mkdir", "write", "rename")
	Path string // File or directory involved
	Err  error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
