// Package query contains read operations (CQRS - Queries).
// Queries derive report data from the aggregated participant roster; they
// never mutate it.
package query

import (
	"context"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MODULE SUMMARY QUERY
// How far has the group gotten: sign-up, start and completion counts plus a
// one-line status per participant.
// ══════════════════════════════════════════════════════════════════════════════

// Participant status strings. These appear verbatim in status reports that
// non-technical project members read; keep the wording stable.
const (
	StatusFinished    = "Has finished module"
	StatusStartedWork = "Has started work"
	StatusSignedUp    = "Has signed up"
	StatusNotSignedUp = "Has not signed up"
	StatusNoResults   = "No results known"
)

// GetModuleSummaryQuery contains the query parameters.
type GetModuleSummaryQuery struct {
	// RunID keys the cache entry. Empty disables caching for this call.
	RunID string

	// ResultsKnown is false when no aggregation has run; every status
	// then reads "No results known" and all counts are zero.
	ResultsKnown bool
}

// ParticipantStatus is one participant's status line.
type ParticipantStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ModuleSummaryDTO is the summary document.
type ModuleSummaryDTO struct {
	// Total is the number of registered participants.
	Total int `json:"total"`

	// Signed counts participants assumed to have signed up.
	Signed int `json:"signed"`

	// Started counts participants with at least one answer.
	Started int `json:"started"`

	// Finished counts participants with every cell answered.
	Finished int `json:"finished"`

	// Statuses holds one line per participant, sorted by ID.
	Statuses []ParticipantStatus `json:"statuses"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache caches summaries between invocations. Optional.
type SummaryCache interface {
	GetSummary(ctx context.Context, runID string, dest interface{}) error
	SetSummary(ctx context.Context, runID string, summary interface{}) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetModuleSummaryHandler handles the GetModuleSummaryQuery.
type GetModuleSummaryHandler struct {
	roster *participant.Roster
	cache  SummaryCache
	log    *logger.Logger
}

// NewGetModuleSummaryHandler creates a new GetModuleSummaryHandler.
// cache may be nil.
func NewGetModuleSummaryHandler(roster *participant.Roster, cache SummaryCache, log *logger.Logger) *GetModuleSummaryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetModuleSummaryHandler{
		roster: roster,
		cache:  cache,
		log:    log.With(logger.Component("module_summary")),
	}
}

// Handle builds the summary.
//
// The counting is deliberately cumulative: a finished participant also
// counts as started and signed up. "Signed up" is a weak signal, the
// platform gives no sign-up event, so a registered participant with no
// answers still counts as signed but not started.
func (h *GetModuleSummaryHandler) Handle(ctx context.Context, q GetModuleSummaryQuery) (*ModuleSummaryDTO, error) {
	if h.roster == nil {
		return nil, shared.NewDomainError("query", "Summarize", shared.ErrMissingResults, "no participants have been read")
	}

	if h.cache != nil && q.RunID != "" {
		var cached ModuleSummaryDTO
		if err := h.cache.GetSummary(ctx, q.RunID, &cached); err == nil {
			return &cached, nil
		}
	}

	dto := &ModuleSummaryDTO{Total: h.roster.Len()}
	for _, p := range h.roster.All() {
		status := StatusNoResults
		if q.ResultsKnown {
			flags := p.Flags()
			switch {
			case flags.Finished:
				dto.Signed++
				dto.Started++
				dto.Finished++
				status = StatusFinished
			case flags.AnsweredOnce:
				dto.Signed++
				dto.Started++
				status = StatusStartedWork
			case flags.Started:
				dto.Signed++
				status = StatusSignedUp
			default:
				status = StatusNotSignedUp
			}
		}
		dto.Statuses = append(dto.Statuses, ParticipantStatus{ID: p.ID, Status: status})
	}

	if h.cache != nil && q.RunID != "" {
		if err := h.cache.SetSummary(ctx, q.RunID, dto); err != nil {
			h.log.Warn("failed to cache summary", logger.Err(err))
		}
	}
	return dto, nil
}
