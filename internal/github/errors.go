package github

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors checked by callers with errors.Is. The sync engine
// uses these to decide between aborting and falling back to a full
// manifest comparison.

// ErrNotFound is returned when a referenced revision or tree path does
// not exist on the remote.
var ErrNotFound = errors.New("not found on remote")

// ErrTruncated is returned when a change-set result hit the compare
// API file limit and cannot be trusted as complete.
var ErrTruncated = errors.New("change set truncated")

// APIError represents a non-success response from the GitHub API.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Unwrap maps 404 responses onto ErrNotFound so callers can trigger
// the full-sync fallback without inspecting status codes.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
