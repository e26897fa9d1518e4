// Package command contains write operations (CQRS - Commands).
// Commands run the preprocessing pipeline: importing event logs, aggregating
// outcomes, provisioning accounts and sending feedback.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/identity"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/ingest"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT EVENTS COMMAND
// Reads the platform's export files, reconciles the two identifier
// namespaces and produces the unified attempt table everything downstream
// is computed from.
// ══════════════════════════════════════════════════════════════════════════════

// ImportEventsCommand contains the input streams for one import run.
// At least one of RawAnalytics and Datashop must be set. When both are,
// the Datashop log provides the canonical IDs and the raw-analytics rows
// are remapped onto them via timestamp reconciliation.
type ImportEventsCommand struct {
	// RawAnalytics is the tab-separated raw_analytics export, or nil.
	RawAnalytics io.Reader

	// Datashop is the Datashop XML export, or nil.
	Datashop io.Reader

	// RunID labels the run. Empty generates a fresh UUID.
	RunID string
}

// Validate validates the command.
func (c ImportEventsCommand) Validate() error {
	if c.RawAnalytics == nil && c.Datashop == nil {
		return errors.New("import_events: at least one input source must be provided")
	}
	return nil
}

// ImportEventsResult contains the outcome of one import run.
type ImportEventsResult struct {
	// RunID identifies this run in logs and in the archive.
	RunID string

	// Unified is the attempt table with canonical subject IDs.
	Unified *attempt.Table

	// Reconciliation is set when both sources were read. Unmatched
	// pseudonyms in it mean rows were dropped from the unified table.
	Reconciliation *identity.Result

	// RawReport and DatashopReport carry per-source parse diagnostics.
	RawReport      *ingest.RawAnalyticsReport
	DatashopReport *ingest.DatashopReport

	// DroppedRows counts raw-analytics rows discarded because their
	// pseudonym could not be mapped to a canonical ID.
	DroppedRows int

	// StartedAt is when the import began.
	StartedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RunArchiver persists the unified table of a run. Optional; batch runs
// without a database configured skip archiving.
type RunArchiver interface {
	SaveRun(ctx context.Context, runID string, startedAt time.Time, table *attempt.Table) error
	SaveMapping(ctx context.Context, runID string, mapping *identity.Mapping) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ImportEventsHandler handles the ImportEventsCommand.
type ImportEventsHandler struct {
	resolver   *skillmap.Resolver
	reconciler *identity.Reconciler
	archiver   RunArchiver
	log        *logger.Logger
}

// NewImportEventsHandler creates a new ImportEventsHandler.
// archiver may be nil when no archive database is configured.
func NewImportEventsHandler(
	resolver *skillmap.Resolver,
	reconciler *identity.Reconciler,
	archiver RunArchiver,
	log *logger.Logger,
) *ImportEventsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ImportEventsHandler{
		resolver:   resolver,
		reconciler: reconciler,
		archiver:   archiver,
		log:        log.With(logger.Component("import_events")),
	}
}

// Handle executes the import.
//
// When only the raw-analytics log is given, its subject IDs are taken to be
// canonical already. When only the Datashop log is given, its anonymous IDs
// become the working namespace. When both are given, the Datashop table is
// parsed first to establish the canonical timestamps, then each raw-analytics
// pseudonym is matched against them and the raw rows are remapped; rows whose
// pseudonym found no match are dropped with a warning.
func (h *ImportEventsHandler) Handle(ctx context.Context, cmd ImportEventsCommand) (*ImportEventsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &ImportEventsResult{
		RunID:     cmd.RunID,
		StartedAt: time.Now().UTC(),
	}
	if result.RunID == "" {
		result.RunID = uuid.NewString()
	}
	log := h.log.WithRunID(result.RunID)

	var rawTable *attempt.Table
	if cmd.RawAnalytics != nil {
		// Session counts may be needed by the Datashop problem matcher,
		// and the raw log is the only place they can be inferred from.
		table, report, err := ingest.NewRawAnalyticsReader(log).Read(cmd.RawAnalytics)
		if err != nil {
			return nil, fmt.Errorf("import_events: read raw analytics: %w", err)
		}
		rawTable = table
		result.RawReport = report

		if !h.resolver.SessionsKnown() {
			perSkill := h.resolver.InferSessions(rawTable)
			log.Info("inferred session counts from raw analytics",
				logger.Int("sessions", h.resolver.NSessions()),
				logger.Any("per_skill", perSkill))
		}
	}

	var xmlTable *attempt.Table
	if cmd.Datashop != nil {
		table, report, err := ingest.NewDatashopReader(h.resolver, log).Read(cmd.Datashop)
		if err != nil {
			return nil, fmt.Errorf("import_events: read datashop: %w", err)
		}
		xmlTable = table
		result.DatashopReport = report
	}

	switch {
	case rawTable != nil && xmlTable != nil:
		recon := h.reconciler.Reconcile(xmlTable.TimestampsBySubject(), rawTable.TimestampsBySubject())
		result.Reconciliation = recon

		for _, pseudonym := range recon.UnmatchedPseudonyms {
			log.Warn("pseudonym could not be matched to any ID",
				logger.Pseudonym(pseudonym), logger.Err(shared.ErrUnmatchedIdentity))
		}
		for _, subject := range recon.UnmatchedSubjects {
			log.Warn("ID could not be matched to any pseudonym",
				logger.ParticipantID(subject), logger.Err(shared.ErrUnmatchedIdentity))
		}

		remapped := rawTable.RemapSubjects(recon.Mapping.AsMap())
		result.DroppedRows = rawTable.Len() - remapped.Len()
		result.Unified = remapped

		if h.archiver != nil {
			if err := h.archiver.SaveMapping(ctx, result.RunID, recon.Mapping); err != nil {
				return nil, fmt.Errorf("import_events: archive mapping: %w", err)
			}
		}

	case xmlTable != nil:
		result.Unified = xmlTable

	default:
		result.Unified = rawTable
	}

	if h.archiver != nil {
		if err := h.archiver.SaveRun(ctx, result.RunID, result.StartedAt, result.Unified); err != nil {
			return nil, fmt.Errorf("import_events: archive run: %w", err)
		}
	}

	log.Info("import complete",
		logger.Records(result.Unified.Len()),
		logger.Int("dropped_rows", result.DroppedRows))
	return result, nil
}
