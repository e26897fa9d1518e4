package identity

import (
	"sort"
	"time"
)

// Default voting parameters. A pseudonym is accepted for a canonical ID when
// more than MatchThreshold of the ID's attempt timestamps have some pseudonym
// timestamp within Tolerance.
const (
	// DefaultTolerance is the timestamp-proximity window.
	DefaultTolerance = 60 * time.Second

	// DefaultThreshold is the required match fraction (exclusive).
	DefaultThreshold = 0.9
)

// Config holds reconciler tuning. Zero values fall back to the defaults.
type Config struct {
	// Tolerance is the absolute timestamp difference still counted as a match.
	Tolerance time.Duration

	// Threshold is the match fraction that must be exceeded to accept a pair.
	Threshold float64
}

// Result is the outcome of one reconciliation run.
type Result struct {
	// Mapping holds the accepted pseudonym → canonical-ID pairs.
	Mapping *Mapping

	// UnmatchedPseudonyms lists pseudonyms with no confident counterpart,
	// sorted. Reported as warnings, never errors.
	UnmatchedPseudonyms []string

	// UnmatchedSubjects lists canonical IDs with no confident counterpart,
	// sorted.
	UnmatchedSubjects []string
}

// Reconciler builds identity mappings. The search is a quadratic fuzzy join:
// acceptable for batches in the hundreds of participants. If scaled up it
// would need interval-indexed matching, but any replacement must preserve the
// threshold semantics and first-match-wins order to keep output compatible.
type Reconciler struct {
	tolerance time.Duration
	threshold float64
}

// NewReconciler creates a reconciler with the given config.
func NewReconciler(cfg Config) *Reconciler {
	r := &Reconciler{tolerance: cfg.Tolerance, threshold: cfg.Threshold}
	if r.tolerance <= 0 {
		r.tolerance = DefaultTolerance
	}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	return r
}

// Reconcile matches pseudonyms to canonical subject IDs. canonical maps each
// canonical ID to its attempt timestamps; pseudonymous does the same for the
// secondary namespace.
//
// For each canonical ID, candidates are probed in sorted pseudonym order and
// the first one exceeding the threshold wins; no globally optimal assignment
// is attempted. Already-matched pseudonyms are skipped, which keeps the
// mapping injective by construction. Both iteration orders are sorted so
// repeated runs over the same input produce the same mapping.
func (r *Reconciler) Reconcile(canonical, pseudonymous map[string][]time.Time) *Result {
	subjects := sortedKeys(canonical)
	pseudonyms := sortedKeys(pseudonymous)

	mapping := NewMapping()

	for _, subject := range subjects {
		subjectTimes := canonical[subject]
		if len(subjectTimes) == 0 {
			continue
		}
		for _, pseudonym := range pseudonyms {
			if mapping.HasPseudonym(pseudonym) {
				continue
			}
			if f := r.matchFraction(subjectTimes, pseudonymous[pseudonym]); f > r.threshold {
				mapping.add(pseudonym, subject, f)
				break
			}
		}
	}

	result := &Result{Mapping: mapping}
	for _, pseudonym := range pseudonyms {
		if !mapping.HasPseudonym(pseudonym) {
			result.UnmatchedPseudonyms = append(result.UnmatchedPseudonyms, pseudonym)
		}
	}
	for _, subject := range subjects {
		if !mapping.HasSubject(subject) {
			result.UnmatchedSubjects = append(result.UnmatchedSubjects, subject)
		}
	}
	return result
}

// matchFraction computes the fraction of subject timestamps that have some
// pseudonym timestamp within the tolerance window.
func (r *Reconciler) matchFraction(subjectTimes, pseudonymTimes []time.Time) float64 {
	if len(subjectTimes) == 0 {
		return 0
	}
	matched := 0
	for _, st := range subjectTimes {
		for _, pt := range pseudonymTimes {
			d := st.Sub(pt)
			if d < 0 {
				d = -d
			}
			if d < r.tolerance {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(subjectTimes))
}

func sortedKeys(m map[string][]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
