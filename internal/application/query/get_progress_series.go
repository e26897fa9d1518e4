package query

import (
	"context"
	"fmt"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS SERIES QUERY
// Cumulative answers over time, per participant or for the whole group.
// These are the series behind the progress plots in status reports.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressSeriesQuery contains the query parameters.
type GetProgressSeriesQuery struct {
	// ParticipantID selects one participant's series. Empty selects the
	// whole-group series.
	ParticipantID string

	// RunID keys the cache entry. Empty disables caching for this call.
	RunID string
}

// ProgressSeriesDTO is the series document. Counts are cumulative and
// non-decreasing; each point is a date on which at least one answer landed.
type ProgressSeriesDTO struct {
	ParticipantID string                    `json:"participant_id,omitempty"`
	Points        []participant.SeriesPoint `json:"points"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SeriesCache caches series between invocations. Optional.
type SeriesCache interface {
	GetSeries(ctx context.Context, runID, participantID string) ([]participant.SeriesPoint, error)
	SetSeries(ctx context.Context, runID, participantID string, series []participant.SeriesPoint) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressSeriesHandler handles the GetProgressSeriesQuery.
type GetProgressSeriesHandler struct {
	roster *participant.Roster
	cache  SeriesCache
	log    *logger.Logger
}

// NewGetProgressSeriesHandler creates a new GetProgressSeriesHandler.
// cache may be nil.
func NewGetProgressSeriesHandler(roster *participant.Roster, cache SeriesCache, log *logger.Logger) *GetProgressSeriesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressSeriesHandler{
		roster: roster,
		cache:  cache,
		log:    log.With(logger.Component("progress_series")),
	}
}

// Handle builds the series.
func (h *GetProgressSeriesHandler) Handle(ctx context.Context, q GetProgressSeriesQuery) (*ProgressSeriesDTO, error) {
	if h.cache != nil && q.RunID != "" {
		if points, err := h.cache.GetSeries(ctx, q.RunID, q.ParticipantID); err == nil {
			return &ProgressSeriesDTO{ParticipantID: q.ParticipantID, Points: points}, nil
		}
	}

	dto := &ProgressSeriesDTO{ParticipantID: q.ParticipantID}
	if q.ParticipantID == "" {
		dto.Points = h.roster.GroupCumulativeByDate()
	} else {
		p, ok := h.roster.Get(q.ParticipantID)
		if !ok {
			return nil, fmt.Errorf("progress_series: unknown participant %q", q.ParticipantID)
		}
		dto.Points = p.CumulativeAnswersByDate()
	}

	if h.cache != nil && q.RunID != "" {
		if err := h.cache.SetSeries(ctx, q.RunID, q.ParticipantID, dto.Points); err != nil {
			h.log.Warn("failed to cache series", logger.Err(err))
		}
	}
	return dto, nil
}
