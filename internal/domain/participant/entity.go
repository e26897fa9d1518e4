// Package participant contains the domain model of a person taking a
// learning module: the per-(session, skill) result grids populated by the
// outcome aggregator, completion flags, and answers-over-time series.
// This is a pure domain layer with zero external dependencies.
package participant

import (
	"time"

	"github.com/demodigi-hub/results-hub/internal/domain/shared"
)

// Domain errors for participant package, classified by shared kind.
var (
	ErrInvalidID      = shared.NewDomainError("participant", "Validate", shared.ErrInvalidID, "invalid ID")
	ErrGridsNotReady  = shared.NewDomainError("participant", "Validate", shared.ErrInvalidState, "result grids not initialised")
	ErrCellOutOfRange = shared.NewDomainError("participant", "Validate", shared.ErrValueOutOfRange, "cell index out of range")
)

// ═══════════════════════════════════════════════════════════════════════════
// FLAGS
// ═══════════════════════════════════════════════════════════════════════════

// Flags note how far a participant has gotten in the module.
type Flags struct {
	// Started is always true: sign-up cannot currently be observed
	// independently of answering. Known limitation, kept deliberately.
	Started bool

	// AnsweredOnce is true when at least one cell is populated.
	AnsweredOnce bool

	// Finished is true when every (session, skill) cell is populated.
	Finished bool
}

// ═══════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PARTICIPANT
// ═══════════════════════════════════════════════════════════════════════════

// Participant represents a single person taking a learning module.
//
// The three result grids always share the same (nSessions × nSkills) shape
// once initialised. A cell is populated if and only if at least one attempt
// record exists for that (participant, skill, session). Grids are populated
// exactly once by the outcome aggregator and are not re-derived unless the
// whole pipeline reruns.
type Participant struct {
	// ID is the participant's identifier in the canonical namespace.
	// For privacy reasons this is unlikely to be their actual name.
	ID string

	nSessions int
	nSkills   int

	// answered[s][k] states whether any attempt exists for session s+1,
	// skill column k.
	answered [][]bool

	// answerDate[s][k] holds the first-attempt timestamp, nil when the
	// cell is unanswered.
	answerDate [][]*time.Time

	// correctFirstTry[s][k] states whether the first attempt was correct.
	correctFirstTry [][]bool

	// FirstAnswerDate is the earliest first-attempt timestamp, nil until a
	// cell is populated.
	FirstAnswerDate *time.Time

	// LastAnswerDate is the latest first-attempt timestamp.
	LastAnswerDate *time.Time

	populatedCells int
}

// New creates a participant with empty result grids. IDs are case-folded.
func New(id string) (*Participant, error) {
	sid, err := shared.NewSubjectID(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return &Participant{ID: sid.String()}, nil
}

// InitGrids allocates the three result grids with identical shape. Calling
// it again resets all cells.
func (p *Participant) InitGrids(nSessions, nSkills int) {
	p.nSessions = nSessions
	p.nSkills = nSkills
	p.answered = makeBoolGrid(nSessions, nSkills)
	p.correctFirstTry = makeBoolGrid(nSessions, nSkills)
	p.answerDate = make([][]*time.Time, nSessions)
	for s := range p.answerDate {
		p.answerDate[s] = make([]*time.Time, nSkills)
	}
	p.FirstAnswerDate = nil
	p.LastAnswerDate = nil
	p.populatedCells = 0
}

func makeBoolGrid(rows, cols int) [][]bool {
	g := make([][]bool, rows)
	for i := range g {
		g[i] = make([]bool, cols)
	}
	return g
}

// GridsReady reports whether InitGrids has been called.
func (p *Participant) GridsReady() bool {
	return p.answered != nil
}

// NSessions returns the session dimension of the result grids.
func (p *Participant) NSessions() int {
	return p.nSessions
}

// NSkills returns the skill dimension of the result grids.
func (p *Participant) NSkills() int {
	return p.nSkills
}

// SetCell populates one (session, skill) cell with the first-try outcome.
// session is 1-based, skill is the catalogue column index. Populating a cell
// twice overwrites it; the aggregator writes each cell exactly once.
func (p *Participant) SetCell(session, skill int, date time.Time, correct bool) error {
	if !p.GridsReady() {
		return ErrGridsNotReady
	}
	if !shared.SessionIndex(session).IsValid(p.nSessions) || skill < 0 || skill >= p.nSkills {
		return ErrCellOutOfRange
	}

	s := session - 1
	if !p.answered[s][skill] {
		p.populatedCells++
	}
	p.answered[s][skill] = true
	p.correctFirstTry[s][skill] = correct
	d := date
	p.answerDate[s][skill] = &d

	if p.FirstAnswerDate == nil || date.Before(*p.FirstAnswerDate) {
		first := date
		p.FirstAnswerDate = &first
	}
	if p.LastAnswerDate == nil || date.After(*p.LastAnswerDate) {
		last := date
		p.LastAnswerDate = &last
	}
	return nil
}

// Answered reports whether the (session, skill) cell is populated.
func (p *Participant) Answered(session, skill int) bool {
	return p.GridsReady() && p.answered[session-1][skill]
}

// CorrectFirstTry reports whether the first try in the cell was correct.
// Unanswered cells report false.
func (p *Participant) CorrectFirstTry(session, skill int) bool {
	return p.GridsReady() && p.correctFirstTry[session-1][skill]
}

// AnswerDate returns the first-attempt timestamp of a cell, nil when the
// cell is unanswered.
func (p *Participant) AnswerDate(session, skill int) *time.Time {
	if !p.GridsReady() {
		return nil
	}
	return p.answerDate[session-1][skill]
}

// NAnswered returns the number of populated cells.
func (p *Participant) NAnswered() int {
	return p.populatedCells
}

// Finished reports whether every cell is populated.
func (p *Participant) Finished() bool {
	return p.GridsReady() && p.populatedCells == p.nSessions*p.nSkills
}

// Flags derives the participant's completion flags.
func (p *Participant) Flags() Flags {
	return Flags{
		Started:      true, // assumed by default, cannot be tested yet
		AnsweredOnce: p.populatedCells > 0,
		Finished:     p.Finished(),
	}
}

// CorrectInEverySession reports whether the participant answered the given
// skill column correctly on the first try in every session. Used by the
// per-competency tallies.
func (p *Participant) CorrectInEverySession(skill int) bool {
	if !p.GridsReady() {
		return false
	}
	for s := 0; s < p.nSessions; s++ {
		if !p.correctFirstTry[s][skill] {
			return false
		}
	}
	return true
}

// AnsweredPerSession returns, for each session, the number of populated
// cells in that session row.
func (p *Participant) AnsweredPerSession() []int {
	out := make([]int, p.nSessions)
	for s := 0; s < p.nSessions; s++ {
		for k := 0; k < p.nSkills; k++ {
			if p.answered[s][k] {
				out[s]++
			}
		}
	}
	return out
}

// CorrectPerSession returns, for each session, the number of first-try
// correct cells in that session row.
func (p *Participant) CorrectPerSession() []int {
	out := make([]int, p.nSessions)
	for s := 0; s < p.nSessions; s++ {
		for k := 0; k < p.nSkills; k++ {
			if p.correctFirstTry[s][k] {
				out[s]++
			}
		}
	}
	return out
}

// ResultsMatrix returns the correct-first-try grid as nested boolean slices,
// session-major, for the downstream statistical-analysis collaborator.
func (p *Participant) ResultsMatrix() [][]bool {
	out := make([][]bool, p.nSessions)
	for s := range out {
		out[s] = make([]bool, p.nSkills)
		copy(out[s], p.correctFirstTry[s])
	}
	return out
}

// AnswerDates returns all populated cell dates in grid order.
func (p *Participant) AnswerDates() []time.Time {
	var out []time.Time
	for s := 0; s < p.nSessions; s++ {
		for k := 0; k < p.nSkills; k++ {
			if d := p.answerDate[s][k]; d != nil {
				out = append(out, *d)
			}
		}
	}
	return out
}

// CumulativeAnswersByDate builds the participant's answers-over-time step
// series.
func (p *Participant) CumulativeAnswersByDate() []SeriesPoint {
	return CumulativeByDate(p.AnswerDates())
}
