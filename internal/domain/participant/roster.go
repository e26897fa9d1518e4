package participant

import (
	"sort"
	"time"
)

// Roster is the set of participants taking one learning module. Participants
// are registered either from an externally supplied ID list or inferred from
// the results table.
type Roster struct {
	byID map[string]*Participant
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*Participant)}
}

// Register adds a participant for the given ID, case-folded. Registering an
// existing ID is a no-op and returns the existing participant.
func (r *Roster) Register(id string) (*Participant, error) {
	p, err := New(id)
	if err != nil {
		return nil, err
	}
	if existing, ok := r.byID[p.ID]; ok {
		return existing, nil
	}
	r.byID[p.ID] = p
	return p, nil
}

// Get returns the participant with the given (case-folded) ID.
func (r *Roster) Get(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the number of registered participants.
func (r *Roster) Len() int {
	return len(r.byID)
}

// SortedIDs returns all participant IDs in sorted order. Reports and exports
// iterate in this order so output is reproducible.
func (r *Roster) SortedIDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the participants in sorted-ID order.
func (r *Roster) All() []*Participant {
	ids := r.SortedIDs()
	out := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// GroupAnswerDates collects every populated cell date across the roster.
func (r *Roster) GroupAnswerDates() []time.Time {
	var out []time.Time
	for _, p := range r.All() {
		if p.GridsReady() {
			out = append(out, p.AnswerDates()...)
		}
	}
	return out
}

// GroupCumulativeByDate builds the whole group's answers-over-time series.
func (r *Roster) GroupCumulativeByDate() []SeriesPoint {
	return CumulativeByDate(r.GroupAnswerDates())
}
