package command

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE RESULTS COMMAND
// Folds the unified attempt table into per-participant first-try grids
// and status flags.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateResultsCommand contains the input for one aggregation.
type AggregateResultsCommand struct {
	// Table is the unified attempt table from an import run.
	Table *attempt.Table

	// RunID labels the run in logs.
	RunID string
}

// AggregateResultsResult contains the outcome of one aggregation.
type AggregateResultsResult struct {
	// Skipped is true when there was nothing to aggregate. The original
	// workflow treats this as a diagnostic, not an error: a status report
	// can still be produced for a module nobody has started yet.
	Skipped bool

	// UnknownSubjects lists table subject IDs that are not registered
	// participants, sorted. Their records are ignored.
	UnknownSubjects []string

	// Participants counts roster members that received at least one cell.
	Participants int

	// CellsPopulated counts (participant, session, skill) cells filled.
	CellsPopulated int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AggregateResultsHandler handles the AggregateResultsCommand.
type AggregateResultsHandler struct {
	roster   *participant.Roster
	resolver *skillmap.Resolver
	log      *logger.Logger
}

// NewAggregateResultsHandler creates a new AggregateResultsHandler.
func NewAggregateResultsHandler(
	roster *participant.Roster,
	resolver *skillmap.Resolver,
	log *logger.Logger,
) *AggregateResultsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AggregateResultsHandler{
		roster:   roster,
		resolver: resolver,
		log:      log.With(logger.Component("aggregate_results")),
	}
}

// Handle executes the aggregation.
//
// For every registered participant and every (skill, session) pair, the
// first attempt on record decides the cell: its timestamp becomes the answer
// date and its correctness the first-try outcome. Records for subjects not
// on the roster are counted but otherwise ignored; records for activities
// outside the skill catalogue never reach this point, the ingest layer has
// already filtered them.
func (h *AggregateResultsHandler) Handle(ctx context.Context, cmd AggregateResultsCommand) (*AggregateResultsResult, error) {
	log := h.log.WithRunID(cmd.RunID)

	if cmd.Table == nil || cmd.Table.Len() == 0 {
		log.Warn("no results have been read, skipping aggregation")
		return &AggregateResultsResult{Skipped: true}, nil
	}
	if !h.resolver.SessionsKnown() {
		return nil, errors.New("aggregate_results: session count is not known")
	}

	nSessions := h.resolver.NSessions()
	skills := h.resolver.Catalogue().Skills()

	// Index first attempts once instead of filtering the table per cell.
	firstTries := indexFirstTries(cmd.Table)

	result := &AggregateResultsResult{}
	unknown := make(map[string]bool)
	for _, subjectID := range cmd.Table.SubjectIDs() {
		if _, ok := h.roster.Get(strings.ToLower(subjectID)); !ok {
			unknown[strings.ToLower(subjectID)] = true
		}
	}
	for id := range unknown {
		result.UnknownSubjects = append(result.UnknownSubjects, id)
	}
	sort.Strings(result.UnknownSubjects)
	for _, id := range result.UnknownSubjects {
		log.Warn("attempt records for unregistered subject", logger.ParticipantID(id))
	}

	for _, p := range h.roster.All() {
		p.InitGrids(nSessions, len(skills))

		populated := 0
		for col, skill := range skills {
			for session := 1; session <= nSessions; session++ {
				name := attempt.FormatActivityName(skill, session)
				first, ok := firstTries[cellKey{subject: p.ID, activity: name}]
				if !ok {
					continue
				}
				if err := p.SetCell(session, col, first.Timestamp, first.Correct); err != nil {
					return nil, err
				}
				populated++
			}
		}

		if populated > 0 {
			result.Participants++
			result.CellsPopulated += populated
		}
	}

	log.Info("aggregation complete",
		logger.Int("participants", result.Participants),
		logger.Int("cells", result.CellsPopulated),
		logger.Int("unknown_subjects", len(result.UnknownSubjects)))
	return result, nil
}

type cellKey struct {
	subject  string
	activity attempt.ActivityName
}

// indexFirstTries picks the earliest first-attempt record per
// (subject, activity). Attempt number 1 wins; among several number-1 records
// (bursts share a derived number) the earliest timestamp wins, ties broken
// by table order.
func indexFirstTries(table *attempt.Table) map[cellKey]attempt.Record {
	idx := make(map[cellKey]attempt.Record)
	for _, rec := range table.Records() {
		if rec.Number != 1 {
			continue
		}
		key := cellKey{subject: strings.ToLower(rec.SubjectID), activity: rec.Activity}
		if existing, ok := idx[key]; ok && !rec.Timestamp.Before(existing.Timestamp) {
			continue
		}
		idx[key] = rec
	}
	return idx
}
