package crawler

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

var (
	// ErrNotFound reports that the registry holds no record for an identifier.
	ErrNotFound = errors.New("record not found")
	// ErrExhausted is returned by Advance once the crawl has terminated.
	ErrExhausted = errors.New("crawl exhausted")
)

// FetchError describes a fetch that failed for a reason other than a missing
// record. Transient failures (network, timeouts, 429, 5xx) are retry candidates.
type FetchError struct {
	ID         registry.Identifier
	StatusCode int
	Transient  bool
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.ID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err wraps a transient FetchError.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient
	}
	return false
}
