package query

import (
	"context"
	"errors"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPETENCY TALLIES QUERY
// Initial-performance tallies per competency: how many skills each
// participant already had right on the first try in every session, and how
// many participants mastered each individual skill. These feed the bar
// charts in the module evaluation.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMasteryThreshold marks the fraction of a competency's skills a
// participant should master for the competency to count as already known.
const DefaultMasteryThreshold = 2.0 / 3.0

// GetCompetencyTalliesQuery contains the query parameters.
type GetCompetencyTalliesQuery struct {
	// Competency selects a single competency by name. Empty selects all.
	Competency string

	// MasteryThreshold overrides DefaultMasteryThreshold when positive.
	MasteryThreshold float64
}

// CompetencyTallyDTO is the tally for one competency.
type CompetencyTallyDTO struct {
	// Competency is the competency name.
	Competency string `json:"competency"`

	// Skills lists the competency's skills in catalogue order.
	Skills []string `json:"skills"`

	// Histogram[n] counts participants who mastered exactly n of the
	// competency's skills. Length is len(Skills)+1.
	Histogram []int `json:"histogram"`

	// AboveThreshold[n] states whether bin n clears the mastery
	// threshold. Used to color the bars.
	AboveThreshold []bool `json:"above_threshold"`

	// PerSkill[i] counts participants who mastered Skills[i].
	PerSkill []int `json:"per_skill"`
}

// CompetencyTalliesDTO is the full tally document.
type CompetencyTalliesDTO struct {
	// Participants is the roster size, the ceiling of every count.
	Participants int `json:"participants"`

	// Tallies holds one entry per competency in catalogue order.
	Tallies []CompetencyTallyDTO `json:"tallies"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetCompetencyTalliesHandler handles the GetCompetencyTalliesQuery.
type GetCompetencyTalliesHandler struct {
	roster    *participant.Roster
	catalogue *skillmap.Catalogue
	log       *logger.Logger
}

// NewGetCompetencyTalliesHandler creates a new GetCompetencyTalliesHandler.
func NewGetCompetencyTalliesHandler(roster *participant.Roster, catalogue *skillmap.Catalogue, log *logger.Logger) *GetCompetencyTalliesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCompetencyTalliesHandler{
		roster:    roster,
		catalogue: catalogue,
		log:       log.With(logger.Component("competency_tallies")),
	}
}

// Handle builds the tallies.
//
// A skill counts as mastered when the participant answered correctly on the
// first try in every session. An unanswered cell counts as not mastered,
// which slightly understates participants who never finished; the
// evaluation side is aware of this bias.
func (h *GetCompetencyTalliesHandler) Handle(ctx context.Context, q GetCompetencyTalliesQuery) (*CompetencyTalliesDTO, error) {
	threshold := q.MasteryThreshold
	if threshold <= 0 {
		threshold = DefaultMasteryThreshold
	}

	dto := &CompetencyTalliesDTO{Participants: h.roster.Len()}

	found := false
	for _, comp := range h.catalogue.Competencies() {
		if q.Competency != "" && comp.Name != q.Competency {
			continue
		}
		found = true
		dto.Tallies = append(dto.Tallies, h.tally(comp, threshold))
	}
	if q.Competency != "" && !found {
		return nil, errors.New("competency_tallies: unknown competency " + q.Competency)
	}

	return dto, nil
}

func (h *GetCompetencyTalliesHandler) tally(comp skillmap.Competency, threshold float64) CompetencyTallyDTO {
	n := len(comp.Skills)
	t := CompetencyTallyDTO{
		Competency:     comp.Name,
		Skills:         comp.Skills,
		Histogram:      make([]int, n+1),
		AboveThreshold: make([]bool, n+1),
		PerSkill:       make([]int, n),
	}
	for i := 0; i <= n; i++ {
		t.AboveThreshold[i] = float64(i)/float64(n) > threshold
	}

	cols := make([]int, n)
	for i, skill := range comp.Skills {
		cols[i] = h.catalogue.SkillIndex(skill)
	}

	for _, p := range h.roster.All() {
		nCorrect := 0
		for i, col := range cols {
			if p.GridsReady() && p.CorrectInEverySession(col) {
				nCorrect++
				t.PerSkill[i]++
			}
		}
		t.Histogram[nCorrect]++
	}
	return t
}
