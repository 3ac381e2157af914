package downloader

import (
	"errors"
	"fmt"
)

// ErrInvalidDestination is returned for URLs that do not map to a file under
// the destination root.
var ErrInvalidDestination = errors.New("invalid destination path")

// DownloadError describes why one asset could not be downloaded. It carries
// the last attempt's error.
type DownloadError struct {
	URL        string // Asset URL
	Attempts   int    // Number of requests made
	StatusCode int    // Last HTTP status, 0 if none was received
	Err        error  // Last attempt's error
}

// Error returns the last attempt's message, e.g. "status 404".
func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d", e.StatusCode)
	}

	return "unknown error"
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
