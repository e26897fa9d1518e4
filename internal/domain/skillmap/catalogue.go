// Package skillmap contains the skill catalogue and the session/skill
// resolver: mapping raw activity names to (skill, session) pairs and
// inferring the module's session count when it is not supplied.
// This is a pure domain layer with zero external dependencies.
package skillmap

import (
	"fmt"

	"github.com/demodigi-hub/results-hub/internal/domain/shared"
)

// Domain errors for skillmap package, classified by shared kind.
var (
	ErrNoCompetencies = shared.NewDomainError("skillmap", "Validate", shared.ErrEmptyValue, "catalogue lists no competencies")
	ErrEmptySkills    = shared.NewDomainError("skillmap", "Validate", shared.ErrEmptyValue, "competency lists no skills")
	ErrDuplicate      = shared.NewDomainError("skillmap", "Validate", shared.ErrAlreadyExists, "skill listed more than once")
)

// Competency is a named grouping of related skills. Competencies are used
// for reporting, never for aggregation logic.
type Competency struct {
	// Name of the competency, e.g. "IT-säkerhet".
	Name string

	// Skills tested under this competency, in catalogue order.
	Skills []string
}

// Catalogue is the static configuration of competencies and skills for one
// learning module. The flattened skill order is fixed at construction and
// defines the column order of every result grid.
type Catalogue struct {
	competencies []Competency
	skills       []string
	skillIndex   map[string]int
}

// NewCatalogue builds a validated catalogue. Each skill must belong to
// exactly one competency.
func NewCatalogue(competencies []Competency) (*Catalogue, error) {
	if len(competencies) == 0 {
		return nil, ErrNoCompetencies
	}

	c := &Catalogue{
		competencies: make([]Competency, len(competencies)),
		skillIndex:   make(map[string]int),
	}
	copy(c.competencies, competencies)

	for _, comp := range competencies {
		if len(comp.Skills) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmptySkills, comp.Name)
		}
		for _, skill := range comp.Skills {
			if _, dup := c.skillIndex[skill]; dup {
				return nil, fmt.Errorf("%w: %q", ErrDuplicate, skill)
			}
			c.skillIndex[skill] = len(c.skills)
			c.skills = append(c.skills, skill)
		}
	}
	return c, nil
}

// Skills returns all skills in catalogue order.
func (c *Catalogue) Skills() []string {
	return c.skills
}

// NSkills returns the total number of skills.
func (c *Catalogue) NSkills() int {
	return len(c.skills)
}

// Competencies returns the competency groupings in catalogue order.
func (c *Catalogue) Competencies() []Competency {
	return c.competencies
}

// SkillsFor returns the skills of the named competency, or nil.
func (c *Catalogue) SkillsFor(competency string) []string {
	for _, comp := range c.competencies {
		if comp.Name == competency {
			return comp.Skills
		}
	}
	return nil
}

// SkillIndex returns the fixed column index of a skill, or -1.
func (c *Catalogue) SkillIndex(skill string) int {
	if idx, ok := c.skillIndex[skill]; ok {
		return idx
	}
	return -1
}

// Contains reports whether the skill is part of the catalogue.
func (c *Catalogue) Contains(skill string) bool {
	_, ok := c.skillIndex[skill]
	return ok
}
