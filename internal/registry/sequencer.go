// Package registry describes how records are addressed in the remote
// registry: identifier formatting and the record URL built from it.
package registry

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default identifier layout used by ClinicalTrials.gov.
const (
	DefaultPrefix  = "NCT"
	DefaultWidth   = 8
	DefaultBaseURL = "https://clinicaltrials.gov/ct2/show"

	displayQuery = "displayxml=true"
)

// Identifier names one record in the remote registry.
type Identifier string

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return string(id)
}

// Sequencer produces candidate identifiers from a monotonically increasing
// counter. It is owned by a single crawler and is not safe for concurrent use.
type Sequencer struct {
	prefix  string
	width   int
	counter int
}

// NewSequencer returns a Sequencer whose first identifier formats start.
// A non-positive width falls back to DefaultWidth and a negative start to 0.
func NewSequencer(prefix string, width, start int) *Sequencer {
	if width <= 0 {
		width = DefaultWidth
	}
	if start < 0 {
		start = 0
	}
	return &Sequencer{
		prefix:  prefix,
		width:   width,
		counter: start,
	}
}

// Next formats the current counter and then increments it.
func (s *Sequencer) Next() Identifier {
	id := s.Format(s.counter)
	s.counter++
	return id
}

// Counter reports the value the next call to Next will format.
func (s *Sequencer) Counter() int {
	return s.counter
}

// Format renders n as prefix plus n left-padded with zeros to the configured
// width. Counters wider than the width are rendered in full.
func (s *Sequencer) Format(n int) Identifier {
	digits := strconv.Itoa(n)
	if pad := s.width - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return Identifier(s.prefix + digits)
}

// RecordURL builds {base}/{identifier}?displayxml=true.
func RecordURL(base string, id Identifier) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("registry base url is required")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + url.PathEscape(string(id)))
	if err != nil {
		return "", fmt.Errorf("parse record url: %w", err)
	}
	u.RawQuery = displayQuery
	return u.String(), nil
}
