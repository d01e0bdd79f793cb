package models

import "errors"

var (
	// ErrSafetyAbort is raised when the operator drives the pointer into the
	// fail-safe corner. It must never be swallowed; the process exits on it.
	ErrSafetyAbort = errors.New("safety abort: pointer moved to fail-safe corner")

	// ErrMarketUnavailable means no depot could open the market. The UI is in
	// an unknown state afterwards, so the scanner exits.
	ErrMarketUnavailable = errors.New("market could not be opened from any depot")

	// ErrNavigationNotFound wraps a UI affordance that did not appear in time
	ErrNavigationNotFound = errors.New("ui element not found")
)
