package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates link uniqueness.
	ErrDuplicate = errors.New("duplicate link")
	// ErrFetch marks every failure to obtain or decode a results page.
	ErrFetch = errors.New("fetch failed")
	// ErrLockHeld is returned when another run owns the run lock.
	ErrLockHeld = errors.New("run lock held")
)

// FetchError describes a failed page fetch.
type FetchError struct {
	URL  string
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d: %v", e.URL, e.Page, e.Err)
}

// Unwrap exposes both the cause and ErrFetch to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}
