package supabase

import (
	"errors"
	"fmt"
)

// ErrNoResource is returned by Probe when none of the candidates answered.
var ErrNoResource = errors.New("supabase: no candidate resource found")

// ResourceFetchError reports a resource that could not be paginated to
// completion: a status outside {200, 206}, a transport failure, or a page
// that is not a JSON array.
type ResourceFetchError struct {
	Resource   string // Resource name
	StatusCode int    // HTTP status code, 0 when no response was received
	Body       string // First bytes of the response body
	Err        error  // Underlying error, if any
}

func (e *ResourceFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
	}

	return fmt.Sprintf("failed to fetch %s: status %d, body=%q", e.Resource, e.StatusCode, e.Body)
}

func (e *ResourceFetchError) Unwrap() error {
	return e.Err
}
