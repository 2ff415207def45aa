package crawler

import (
	"fmt"
	"strings"
)

// FixedBound stops after exactly Bound advances. Bound is a size estimate,
// not an end-of-data signal: absences before it are ordinary misses.
type FixedBound struct {
	Limit int
}

// Done implements TerminationPolicy.
func (p FixedBound) Done(attempted, _ int) bool {
	return attempted >= p.Limit
}

// Bound implements TerminationPolicy.
func (p FixedBound) Bound() int {
	return p.Limit
}

// ConsecutiveAbsence stops once Limit advances in a row produced no record.
// A positive Cap additionally bounds the total number of advances.
type ConsecutiveAbsence struct {
	Limit int
	Cap   int
}

// Done implements TerminationPolicy.
func (p ConsecutiveAbsence) Done(attempted, absentRun int) bool {
	if p.Cap > 0 && attempted >= p.Cap {
		return true
	}
	return p.Limit > 0 && absentRun >= p.Limit
}

// Bound implements TerminationPolicy.
func (p ConsecutiveAbsence) Bound() int {
	return p.Cap
}

// Termination policy names accepted by ParseTermination.
const (
	TerminationBound              = "bound"
	TerminationConsecutiveAbsence = "consecutive_absence"
)

// ParseTermination builds a TerminationPolicy from its configured name.
func ParseTermination(name string, bound, absenceLimit int) (TerminationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TerminationBound, "":
		if bound < 0 {
			return nil, fmt.Errorf("crawl bound must be >= 0")
		}
		return FixedBound{Limit: bound}, nil
	case TerminationConsecutiveAbsence:
		if absenceLimit <= 0 {
			return nil, fmt.Errorf("absence limit must be > 0 for %s termination", TerminationConsecutiveAbsence)
		}
		return ConsecutiveAbsence{Limit: absenceLimit, Cap: bound}, nil
	default:
		return nil, fmt.Errorf("unknown termination policy %q", name)
	}
}

// AbsencePolicy selects how fetch failures are told apart from missing records.
type AbsencePolicy string

const (
	// AbsenceConflated treats every failed fetch as a missing record, without
	// retries. This is how the registry was originally harvested.
	AbsenceConflated AbsencePolicy = "conflated"
	// AbsenceSeparated retries transient failures on the same identifier and
	// only counts true not-found results toward end-of-data detection.
	AbsenceSeparated AbsencePolicy = "separated"

	// DefaultAbsencePolicy applies when no policy is configured.
	DefaultAbsencePolicy = AbsenceSeparated
)

// ParseAbsencePolicy validates a configured absence policy name.
func ParseAbsencePolicy(name string) (AbsencePolicy, error) {
	switch p := AbsencePolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return DefaultAbsencePolicy, nil
	case AbsenceConflated, AbsenceSeparated:
		return p, nil
	default:
		return "", fmt.Errorf("unknown absence policy %q", name)
	}
}
