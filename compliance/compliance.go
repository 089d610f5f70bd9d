package compliance

import (
	"fmt"
	"strings"
)

// ComplianceMode selects how the registry treats a submission whose hash is
// already stored with different envelope bytes.
//
// Content addressing makes equal hashes imply equal payloads, but the same
// payload may be re-signed, so the surrounding envelope can still differ.
// Permissive mode keeps the latest envelope. Strict mode rejects it.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("ComplianceMode(%d)", int(m))
	}
}

// Parse reads a mode name. The empty string is Permissive.
func Parse(s string) (ComplianceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("unknown duplicate policy %q (want permissive or strict)", s)
	}
}

// Decision is the outcome of a duplicate check.
type Decision int

const (
	// Store writes the submission.
	Store Decision = iota
	// Skip leaves the stored bytes untouched; they are already identical.
	Skip
	// Replace overwrites differing stored bytes.
	Replace
	// Reject refuses the submission.
	Reject
)

// Decide returns what to do with incoming given the bytes already stored
// under its hash. existing is nil when nothing is stored.
func (m ComplianceMode) Decide(existing, incoming []byte) Decision {
	switch {
	case existing == nil:
		return Store
	case string(existing) == string(incoming):
		return Skip
	case m == Strict:
		return Reject
	default:
		return Replace
	}
}
