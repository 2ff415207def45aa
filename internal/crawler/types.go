package crawler

import (
	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

// Outcome classifies the result of fetching one identifier.
type Outcome int

// Outcome values recorded on every RawRecord.
const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeFailed
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a Crawler.
type State int

// Crawler states. A crawler only ever moves from Active to Exhausted.
const (
	StateActive State = iota
	StateExhausted
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateExhausted {
		return "exhausted"
	}
	return "active"
}

// RawRecord pairs an identifier with the fetched markup tree. Tree is nil when
// the fetch produced no record; Err then carries the reason.
type RawRecord struct {
	ID       registry.Identifier
	Tree     *xmlquery.Node
	Outcome  Outcome
	Err      error
	Attempts int
}

// Present reports whether the record carries a document tree.
func (r RawRecord) Present() bool {
	return r.Tree != nil
}
