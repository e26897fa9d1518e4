// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// SubjectID represents a participant identifier in the canonical namespace.
// IDs are compared case-insensitively; Normalize folds them to lower case.
type SubjectID string

// IsValid checks that the subject ID is non-empty and carries no whitespace.
func (s SubjectID) IsValid() bool {
	id := string(s)
	return len(id) > 0 && !strings.ContainsAny(id, " \t\n\r")
}

// String returns the string representation.
func (s SubjectID) String() string {
	return string(s)
}

// Normalize returns a case-folded version of the subject ID.
func (s SubjectID) Normalize() SubjectID {
	return SubjectID(strings.ToLower(strings.TrimSpace(string(s))))
}

// NewSubjectID creates a normalized SubjectID with validation.
func NewSubjectID(raw string) (SubjectID, error) {
	id := SubjectID(raw).Normalize()
	if !id.IsValid() {
		return "", ErrInvalidID
	}
	return id, nil
}

// Pseudonym represents a participant identifier from the secondary
// (raw-log) namespace. It requires reconciliation to a SubjectID before
// results can be attributed to a participant.
type Pseudonym string

// IsValid checks that the pseudonym is non-empty.
func (p Pseudonym) IsValid() bool {
	return len(strings.TrimSpace(string(p))) > 0
}

// String returns the string representation.
func (p Pseudonym) String() string {
	return string(p)
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// SessionIndex is a 1-based index into the module's testing sessions.
type SessionIndex int

// IsValid checks the session index against the module's session count.
func (s SessionIndex) IsValid(nSessions int) bool {
	return int(s) >= 1 && int(s) <= nSessions
}

// Int returns the underlying int value.
func (s SessionIndex) Int() int {
	return int(s)
}
