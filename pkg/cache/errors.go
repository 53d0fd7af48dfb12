package cache

import (
	"errors"
	"fmt"
)

// ErrNoEntry indicates the remote fetch failed and no previous payload exists
// for the key to fall back on.
var ErrNoEntry = errors.New("no cached entry to fall back on")

// FetchError is returned by Fetch when the transport fails on a cold key.
// It unwraps to both ErrNoEntry and the underlying transport error.
type FetchError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() []error {
	return []error{ErrNoEntry, e.Err}
}
