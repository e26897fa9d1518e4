// Package main is the entry point for the preprocessing batch job.
//
// One invocation reads the learning platform's export files (raw_analytics
// TSV and/or Datashop XML), reconciles the two identifier namespaces,
// aggregates first-try outcomes into per-participant result grids and writes
// the export artifacts: per-participant JSON results, the ID list, the
// unified attempt table CSV, the report for SCB and the status-report
// documents (progress series, competency tallies, completion report).
//
// The architecture follows Clean Architecture and DDD:
// - Domain: attempt tables, participants, identity reconciliation, skill maps
// - Application: orchestration of use cases (Commands/Queries)
// - Infrastructure: ingest readers, export writers, run archive, Canvas API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	// Application layer
	"github.com/demodigi-hub/results-hub/internal/application/command"
	"github.com/demodigi-hub/results-hub/internal/application/query"

	// Domain layer
	"github.com/demodigi-hub/results-hub/internal/domain/identity"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"

	// Infrastructure layer
	"github.com/demodigi-hub/results-hub/internal/infrastructure/export"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/ingest"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/persistence/postgres"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/persistence/redis"

	// Packages
	"github.com/demodigi-hub/results-hub/config"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Ingest.RawAnalyticsPath == "" && cfg.Ingest.DatashopPath == "" {
		return fmt.Errorf("no input sources: set INGEST_RAW_ANALYTICS_PATH and/or INGEST_DATASHOP_PATH")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting preprocessing run",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. COMPETENCY CATALOGUE AND DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	catalogue, err := config.LoadCompetencies(cfg.Ingest.CompetenciesPath)
	if err != nil {
		return fmt.Errorf("failed to load competency catalogue: %w", err)
	}
	log.Info("competency catalogue loaded",
		logger.String("path", cfg.Ingest.CompetenciesPath),
		logger.Int("competencies", len(catalogue.Competencies())),
		logger.Int("skills", catalogue.NSkills()),
	)

	resolver := skillmap.NewResolver(catalogue, cfg.Ingest.Sessions)
	reconciler := identity.NewReconciler(identity.Config{
		Tolerance: cfg.Identity.Tolerance,
		Threshold: cfg.Identity.Threshold,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN ARCHIVE (PostgreSQL, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var archive *postgres.ArchiveRepository
	if !cfg.Database.Disabled {
		log.Info("connecting to archive database...")
		dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}

		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("archive schema is up to date")

		archive = postgres.NewArchiveRepository(dbConn)
	} else {
		log.Info("run archiving disabled, results are only written to disk")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. IMPORT EVENT LOGS
	// ─────────────────────────────────────────────────────────────────────────
	var rawSrc, xmlSrc io.Reader
	if cfg.Ingest.RawAnalyticsPath != "" {
		f, err := os.Open(cfg.Ingest.RawAnalyticsPath)
		if err != nil {
			return fmt.Errorf("failed to open raw-analytics log: %w", err)
		}
		defer f.Close()
		rawSrc = f
	}
	if cfg.Ingest.DatashopPath != "" {
		f, err := os.Open(cfg.Ingest.DatashopPath)
		if err != nil {
			return fmt.Errorf("failed to open Datashop log: %w", err)
		}
		defer f.Close()
		xmlSrc = f
	}

	var archiver command.RunArchiver
	if archive != nil {
		archiver = archive
	}
	importHandler := command.NewImportEventsHandler(resolver, reconciler, archiver, log)
	imported, err := importHandler.Handle(ctx, command.ImportEventsCommand{
		RawAnalytics: rawSrc,
		Datashop:     xmlSrc,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	log = log.WithRunID(imported.RunID)
	log.Info("event logs imported",
		logger.Records(imported.Unified.Len()),
		logger.Int("dropped_rows", imported.DroppedRows),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. PARTICIPANT ROSTER
	// ─────────────────────────────────────────────────────────────────────────
	roster := participant.NewRoster()
	if cfg.Ingest.ParticipantIDsPath != "" {
		f, err := os.Open(cfg.Ingest.ParticipantIDsPath)
		if err != nil {
			return fmt.Errorf("failed to open participant ID list: %w", err)
		}
		ids, err := ingest.ReadParticipantIDs(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read participant ID list: %w", err)
		}
		for _, id := range ids {
			if _, err := roster.Register(id); err != nil {
				return fmt.Errorf("failed to register participant %q: %w", id, err)
			}
		}
	} else {
		// Without a roster file every subject seen in the unified table
		// becomes a participant.
		for _, id := range imported.Unified.SubjectIDs() {
			if _, err := roster.Register(id); err != nil {
				return fmt.Errorf("failed to register participant %q: %w", id, err)
			}
		}
	}
	log.Info("roster assembled", logger.Int("participants", roster.Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. AGGREGATE RESULTS
	// ─────────────────────────────────────────────────────────────────────────
	aggregateHandler := command.NewAggregateResultsHandler(roster, resolver, log)
	aggregated, err := aggregateHandler.Handle(ctx, command.AggregateResultsCommand{
		Table: imported.Unified,
		RunID: imported.RunID,
	})
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	if archive != nil && !aggregated.Skipped {
		if err := archive.SaveFlags(ctx, imported.RunID, roster); err != nil {
			return fmt.Errorf("failed to archive participant flags: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EXPORT ARTIFACTS
	// ─────────────────────────────────────────────────────────────────────────
	if err := writeExports(cfg, log, roster, imported, aggregated.Skipped); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. STATUS REPORTS
	// ─────────────────────────────────────────────────────────────────────────
	var summaryCache query.SummaryCache
	var seriesCache query.SeriesCache
	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("report cache unavailable, reports are recomputed each run", logger.Err(err))
		} else {
			defer cache.Close()
			reportCache := redis.NewReportCache(cache)
			summaryCache = reportCache
			seriesCache = reportCache
		}
	}

	summaryHandler := query.NewGetModuleSummaryHandler(roster, summaryCache, log)
	summary, err := summaryHandler.Handle(ctx, query.GetModuleSummaryQuery{
		RunID:        imported.RunID,
		ResultsKnown: !aggregated.Skipped,
	})
	if err != nil {
		return fmt.Errorf("summary query failed: %w", err)
	}
	log.Info("module summary",
		logger.Int("total", summary.Total),
		logger.Int("signed", summary.Signed),
		logger.Int("started", summary.Started),
		logger.Int("finished", summary.Finished),
	)

	if !aggregated.Skipped {
		if err := writeReports(ctx, cfg, log, roster, catalogue, seriesCache, imported.RunID); err != nil {
			return err
		}
	}

	log.Info("preprocessing run complete", logger.String("output_dir", cfg.Export.OutputDir))
	return nil
}

// writeExports writes every enabled artifact under the configured output
// directory. The per-participant JSON files land in their own subdirectory
// so the feedback sender can attach or reference them one by one.
func writeExports(
	cfg *config.Config,
	log *logger.Logger,
	roster *participant.Roster,
	imported *command.ImportEventsResult,
	skipped bool,
) error {
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// ID list, always written.
	if err := writeFile(filepath.Join(cfg.Export.OutputDir, "ids.json"), func(w io.Writer) error {
		return export.WriteIDs(w, roster.SortedIDs())
	}); err != nil {
		return fmt.Errorf("failed to write ID list: %w", err)
	}

	if skipped {
		log.Warn("no results aggregated, skipping result exports")
		return nil
	}

	// Per-participant JSON results.
	resultsDir := cfg.Export.ResultsDir
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	err := export.WriteParticipantResults(roster, func(id string) (io.WriteCloser, error) {
		return os.Create(filepath.Join(resultsDir, id+".json"))
	})
	if err != nil {
		return fmt.Errorf("failed to write participant results: %w", err)
	}
	log.Info("participant results written", logger.String("dir", resultsDir))

	if cfg.Export.WriteFullResults {
		if err := writeFile(filepath.Join(cfg.Export.OutputDir, "full_results.csv"), func(w io.Writer) error {
			return export.WriteFullResults(w, imported.Unified)
		}); err != nil {
			return fmt.Errorf("failed to write full results: %w", err)
		}
	}

	if cfg.Export.WriteSCBReport {
		if err := writeFile(filepath.Join(cfg.Export.OutputDir, "scb_report.csv"), func(w io.Writer) error {
			return export.WriteSCBReport(w, roster)
		}); err != nil {
			return fmt.Errorf("failed to write SCB report: %w", err)
		}
	}

	return nil
}

// writeReports runs the report queries and writes their documents next to
// the export artifacts: the whole-group progress series as CSV for the
// plotting scripts, the competency tallies and the completion report as JSON.
func writeReports(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	roster *participant.Roster,
	catalogue *skillmap.Catalogue,
	seriesCache query.SeriesCache,
	runID string,
) error {
	seriesHandler := query.NewGetProgressSeriesHandler(roster, seriesCache, log)
	series, err := seriesHandler.Handle(ctx, query.GetProgressSeriesQuery{RunID: runID})
	if err != nil {
		return fmt.Errorf("progress series query failed: %w", err)
	}
	if err := writeFile(filepath.Join(cfg.Export.OutputDir, "progress_series.csv"), func(w io.Writer) error {
		return export.WriteSeries(w, series.Points)
	}); err != nil {
		return fmt.Errorf("failed to write progress series: %w", err)
	}

	talliesHandler := query.NewGetCompetencyTalliesHandler(roster, catalogue, log)
	tallies, err := talliesHandler.Handle(ctx, query.GetCompetencyTalliesQuery{})
	if err != nil {
		return fmt.Errorf("competency tallies query failed: %w", err)
	}
	if err := writeJSON(filepath.Join(cfg.Export.OutputDir, "competency_tallies.json"), tallies); err != nil {
		return fmt.Errorf("failed to write competency tallies: %w", err)
	}

	completionHandler := query.NewGetCompletionReportHandler(roster, log)
	completion, err := completionHandler.Handle(ctx)
	if err != nil {
		return fmt.Errorf("completion report query failed: %w", err)
	}
	if err := writeJSON(filepath.Join(cfg.Export.OutputDir, "completion_report.json"), completion); err != nil {
		return fmt.Errorf("failed to write completion report: %w", err)
	}

	log.Info("status reports written", logger.String("dir", cfg.Export.OutputDir))
	return nil
}

// writeJSON writes v as indented JSON, the format the reporting notebooks load.
func writeJSON(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeFile creates path and runs write against it, closing on all paths.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
