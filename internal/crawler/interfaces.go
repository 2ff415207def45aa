package crawler

import (
	"context"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

// Fetcher retrieves the markup tree for one identifier. Implementations return
// ErrNotFound when the registry has no such record and a *FetchError otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, id registry.Identifier) (*xmlquery.Node, error)
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// TerminationPolicy decides when the registry is considered exhausted.
type TerminationPolicy interface {
	// Done reports whether the crawl should stop after attempted advances,
	// the last absentRun of which produced no record.
	Done(attempted, absentRun int) bool
	// Bound is the hard upper limit on advances, or 0 when unbounded.
	Bound() int
}
