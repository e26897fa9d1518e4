package skillmap

import (
	"strings"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
)

// ErrSessionsUnknown is returned when activity matching is requested before a
// session count has been supplied or inferred. It is a run-configuration
// error, never a per-record one.
var ErrSessionsUnknown = shared.NewDomainError("skillmap", "Resolve", shared.ErrValidation, "session count neither supplied nor inferred")

// Resolver maps raw problem names onto canonical (skill, session) activity
// names, and owns the module's session count. The count is either supplied by
// the caller or inferred from an attempt table.
type Resolver struct {
	catalogue *Catalogue
	nSessions int
	supplied  bool
}

// NewResolver creates a resolver. nSessions <= 0 means the count was not
// supplied and must be inferred before activity matching.
func NewResolver(catalogue *Catalogue, nSessions int) *Resolver {
	r := &Resolver{catalogue: catalogue}
	if nSessions > 0 {
		r.nSessions = nSessions
		r.supplied = true
	}
	return r
}

// Catalogue returns the underlying skill catalogue.
func (r *Resolver) Catalogue() *Catalogue {
	return r.catalogue
}

// NSessions returns the current session count (0 if unknown).
func (r *Resolver) NSessions() int {
	return r.nSessions
}

// SessionsKnown reports whether a session count is available.
func (r *Resolver) SessionsKnown() bool {
	return r.nSessions > 0
}

// SessionsSupplied reports whether the count was supplied externally rather
// than inferred.
func (r *Resolver) SessionsSupplied() bool {
	return r.supplied
}

// MatchProblemName matches a raw problem name against every configured skill
// and every session in [1, nSessions], case-insensitively. It returns the
// canonical mixed-case activity name. Names that match nothing are dropped by
// the caller; they produce no attempt records.
func (r *Resolver) MatchProblemName(name string) (attempt.ActivityName, bool, error) {
	if !r.SessionsKnown() {
		return "", false, ErrSessionsUnknown
	}
	lowered := strings.ToLower(name)
	for _, skill := range r.catalogue.Skills() {
		for session := 1; session <= r.nSessions; session++ {
			canonical := attempt.FormatActivityName(skill, session)
			if lowered == strings.ToLower(canonical.String()) {
				return canonical, true, nil
			}
		}
	}
	return "", false, nil
}

// InferSessions infers the session count from an attempt table: for each
// skill, probe activity names <skill>_Q1, <skill>_Q2, ... contiguously upward
// and stop at the first gap; the module count is the maximum per-skill value.
// A skill with a gap truncates at the gap even if later sessions exist for
// it. The inferred count replaces any previous inference but never a supplied
// count.
func (r *Resolver) InferSessions(table *attempt.Table) map[string]int {
	activities := table.Activities()

	perSkill := make(map[string]int, r.catalogue.NSkills())
	for _, skill := range r.catalogue.Skills() {
		n := 0
		for activities[attempt.FormatActivityName(skill, n+1)] {
			n++
		}
		perSkill[skill] = n
	}

	if !r.supplied {
		max := 0
		for _, n := range perSkill {
			if n > max {
				max = n
			}
		}
		r.nSessions = max
	}
	return perSkill
}
