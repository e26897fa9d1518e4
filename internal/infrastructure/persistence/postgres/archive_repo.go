package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/identity"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARCHIVE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ArchiveRepository implements attempt.ArchiveRepository for PostgreSQL.
// Beyond the attempt table it also archives the identity mapping and the
// participant flags of a run, since those are what the reports are built on.
type ArchiveRepository struct {
	conn *Connection
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(conn *Connection) *ArchiveRepository {
	return &ArchiveRepository{conn: conn}
}

// SaveRun stores the unified attempt table under a batch run ID.
// The whole run goes in one transaction; a half-archived run is worse
// than no archive at all.
func (r *ArchiveRepository) SaveRun(ctx context.Context, runID string, startedAt time.Time, table *attempt.Table) error {
	records := table.Records()

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO runs (id, started_at, n_records)
			VALUES ($1, $2, $3)
		`, runID, startedAt, len(records))
		if err != nil {
			if IsUniqueViolation(err) {
				return fmt.Errorf("run %s: %w", runID, shared.ErrAlreadyExists)
			}
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for i, rec := range records {
			batch.Queue(`
				INSERT INTO attempts (run_id, position, subject_id, activity, occurred_at, attempt_number, correct)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, runID, i, rec.SubjectID, string(rec.Activity), rec.Timestamp, rec.Number, rec.Correct)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range records {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}
		}
		return results.Close()
	})
}

// LoadRun returns the attempt table archived for a batch run, in the
// exact order it was saved.
func (r *ArchiveRepository) LoadRun(ctx context.Context, runID string) (*attempt.Table, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = $1)`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check run %s: %w", runID, err)
	}
	if !exists {
		return nil, fmt.Errorf("run %s: %w", runID, shared.ErrNotFound)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT subject_id, activity, occurred_at, attempt_number, correct
		FROM attempts
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query attempts for run %s: %w", runID, err)
	}
	defer rows.Close()

	table := attempt.EmptyTable()
	for rows.Next() {
		var (
			subjectID  string
			activity   string
			occurredAt time.Time
			number     int
			correct    bool
		)
		if err := rows.Scan(&subjectID, &activity, &occurredAt, &number, &correct); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		table.Append(attempt.Record{
			SubjectID: subjectID,
			Activity:  attempt.ActivityName(activity),
			Timestamp: occurredAt.UTC(),
			Number:    number,
			Correct:   correct,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return table, nil
}

// ListRuns returns archived run IDs, newest first.
func (r *ArchiveRepository) ListRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY MAPPING ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// SaveMapping archives the identity mapping inferred for a run.
func (r *ArchiveRepository) SaveMapping(ctx context.Context, runID string, mapping *identity.Mapping) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, entry := range mapping.Entries() {
			_, err := tx.Exec(ctx, `
				INSERT INTO identity_mappings (run_id, pseudonym, subject_id, match_fraction)
				VALUES ($1, $2, $3, $4)
			`, runID, entry.Pseudonym, entry.SubjectID, entry.MatchFraction)
			if err != nil {
				return fmt.Errorf("insert mapping %s: %w", entry.Pseudonym, err)
			}
		}
		return nil
	})
}

// LoadMappingPairs returns the archived pseudonym-to-ID pairs of a run.
func (r *ArchiveRepository) LoadMappingPairs(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT pseudonym, subject_id
		FROM identity_mappings
		WHERE run_id = $1
		ORDER BY pseudonym
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query mappings for run %s: %w", runID, err)
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var pseudonym, subjectID string
		if err := rows.Scan(&pseudonym, &subjectID); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		pairs[pseudonym] = subjectID
	}
	return pairs, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT FLAGS ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// SaveFlags archives the aggregated per-participant status of a run.
func (r *ArchiveRepository) SaveFlags(ctx context.Context, runID string, roster *participant.Roster) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, p := range roster.All() {
			flags := p.Flags()
			_, err := tx.Exec(ctx, `
				INSERT INTO participant_flags
					(run_id, participant_id, started, answered_once, finished, n_answered, first_answer_at, last_answer_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, runID, p.ID, flags.Started, flags.AnsweredOnce, flags.Finished,
				p.NAnswered(), p.FirstAnswerDate, p.LastAnswerDate)
			if err != nil {
				return fmt.Errorf("insert flags for %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// FlagsRow is one archived participant status row.
type FlagsRow struct {
	ParticipantID string
	Started       bool
	AnsweredOnce  bool
	Finished      bool
	NAnswered     int
	FirstAnswerAt *time.Time
	LastAnswerAt  *time.Time
}

// LoadFlags returns the archived participant flags of a run, ordered by ID.
func (r *ArchiveRepository) LoadFlags(ctx context.Context, runID string) ([]FlagsRow, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT participant_id, started, answered_once, finished, n_answered, first_answer_at, last_answer_at
		FROM participant_flags
		WHERE run_id = $1
		ORDER BY participant_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query flags for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []FlagsRow
	for rows.Next() {
		var row FlagsRow
		if err := rows.Scan(&row.ParticipantID, &row.Started, &row.AnsweredOnce, &row.Finished,
			&row.NAnswered, &row.FirstAnswerAt, &row.LastAnswerAt); err != nil {
			return nil, fmt.Errorf("scan flags: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
