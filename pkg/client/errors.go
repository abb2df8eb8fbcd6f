package client

import (
	"errors"
	"fmt"
)

// ErrRedirectLimitExceeded is returned when a fetch follows more redirects
// than Config.MaxRedirects allows. No content is returned with it.
var ErrRedirectLimitExceeded = errors.New("redirect limit exceeded")

// ErrLocalRedirect is returned when a network response redirects to a
// file: locator. Redirects to data: are followed.
var ErrLocalRedirect = errors.New("redirect from network to local file refused")

// FetchError is a failed fetch. Locator is the hop that failed.
type FetchError struct {
	Locator   string
	Redirects int
	Err       error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Redirects > 0 {
		return fmt.Sprintf("fetch %s (after %d redirects): %v", e.Locator, e.Redirects, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
