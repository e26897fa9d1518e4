package query

import (
	"context"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPLETION REPORT QUERY
// The per-participant completion rows delivered to Statistiska Centralbyrån.
// The CSV rendering lives in infrastructure/export; this query produces the
// underlying rows so other surfaces can reuse them.
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRow is one participant's completion record. StartDate and
// EndDate are nil when unknown; the export layer renders the sentinels.
type CompletionRow struct {
	ParticipantID string `json:"participant_id"`

	// Finished mirrors the participant's finished flag.
	Finished bool `json:"finished"`

	// StartDate is the date of the first recorded answer.
	StartDate *string `json:"start_date"`

	// EndDate is the date of the last recorded answer, only set when the
	// participant finished. A last answer without completion says nothing
	// about when the module will be done.
	EndDate *string `json:"end_date"`
}

// CompletionReportDTO is the full report, sorted by participant ID.
type CompletionReportDTO struct {
	Rows []CompletionRow `json:"rows"`
}

// layoutDate is the date-only layout used in the report.
const layoutDate = "2006-01-02"

// GetCompletionReportHandler handles the completion report query.
type GetCompletionReportHandler struct {
	roster *participant.Roster
	log    *logger.Logger
}

// NewGetCompletionReportHandler creates a new GetCompletionReportHandler.
func NewGetCompletionReportHandler(roster *participant.Roster, log *logger.Logger) *GetCompletionReportHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCompletionReportHandler{
		roster: roster,
		log:    log.With(logger.Component("completion_report")),
	}
}

// Handle builds the report rows.
func (h *GetCompletionReportHandler) Handle(ctx context.Context) (*CompletionReportDTO, error) {
	dto := &CompletionReportDTO{}
	for _, p := range h.roster.All() {
		row := CompletionRow{
			ParticipantID: p.ID,
			Finished:      p.Finished(),
		}
		if p.FirstAnswerDate != nil {
			s := p.FirstAnswerDate.Format(layoutDate)
			row.StartDate = &s
		}
		if p.Finished() && p.LastAnswerDate != nil {
			s := p.LastAnswerDate.Format(layoutDate)
			row.EndDate = &s
		}
		dto.Rows = append(dto.Rows, row)
	}
	return dto, nil
}
