// Package identity implements the identity reconciler: building a
// best-effort injective mapping between two independently pseudonymized
// subject-identifier spaces using timestamp-proximity voting.
// This is a pure domain layer with zero external dependencies.
package identity

// Entry is one accepted pseudonym → canonical-ID match.
type Entry struct {
	// Pseudonym from the secondary (raw-log) namespace.
	Pseudonym string

	// SubjectID from the canonical namespace.
	SubjectID string

	// MatchFraction is the timestamp-vote fraction that accepted the match.
	MatchFraction float64
}

// Mapping is a partial injective function from the pseudonymous namespace to
// the canonical one. Entries with no confident match are omitted, never
// guessed. A mapping is computed once per reconciliation run and is immutable
// afterwards.
type Mapping struct {
	entries     []Entry
	byPseudonym map[string]string
	bySubject   map[string]string
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		byPseudonym: make(map[string]string),
		bySubject:   make(map[string]string),
	}
}

// add records a match. Both sides must be unmapped; the reconciler only
// offers candidates that preserve injectivity.
func (m *Mapping) add(pseudonym, subjectID string, fraction float64) {
	m.entries = append(m.entries, Entry{Pseudonym: pseudonym, SubjectID: subjectID, MatchFraction: fraction})
	m.byPseudonym[pseudonym] = subjectID
	m.bySubject[subjectID] = pseudonym
}

// Resolve returns the canonical ID for a pseudonym.
func (m *Mapping) Resolve(pseudonym string) (string, bool) {
	id, ok := m.byPseudonym[pseudonym]
	return id, ok
}

// HasPseudonym reports whether the pseudonym has been matched.
func (m *Mapping) HasPseudonym(pseudonym string) bool {
	_, ok := m.byPseudonym[pseudonym]
	return ok
}

// HasSubject reports whether the canonical ID has been matched.
func (m *Mapping) HasSubject(subjectID string) bool {
	_, ok := m.bySubject[subjectID]
	return ok
}

// Len returns the number of matched pairs.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Entries returns the matches in acceptance order.
func (m *Mapping) Entries() []Entry {
	return m.entries
}

// AsMap returns the mapping as a plain pseudonym → subject-ID map.
func (m *Mapping) AsMap() map[string]string {
	out := make(map[string]string, len(m.byPseudonym))
	for p, id := range m.byPseudonym {
		out[p] = id
	}
	return out
}

// IsInjective verifies that no two pseudonyms map to the same canonical ID.
// Construction guarantees this; the check exists for tests and audits.
func (m *Mapping) IsInjective() bool {
	seen := make(map[string]bool, len(m.entries))
	for _, e := range m.entries {
		if seen[e.SubjectID] {
			return false
		}
		seen[e.SubjectID] = true
	}
	return true
}
