package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: RUNS AND ATTEMPTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create runs and attempts tables
-- Version: 001

-- One row per preprocessing run. A run is one invocation of the
-- preprocess binary over a set of export files.
CREATE TABLE IF NOT EXISTS runs (
    id UUID PRIMARY KEY,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    archived_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    n_records INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

-- One row per attempt record in the unified table of a run. position
-- preserves the deterministic table order so a run can be reloaded
-- byte-for-byte equal to what was archived.
CREATE TABLE IF NOT EXISTS attempts (
    id BIGSERIAL PRIMARY KEY,
    run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    subject_id VARCHAR(100) NOT NULL,
    activity VARCHAR(200) NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    attempt_number INTEGER NOT NULL,
    correct BOOLEAN NOT NULL,

    CONSTRAINT valid_attempt_number CHECK (attempt_number >= 1),
    CONSTRAINT unique_position UNIQUE (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_attempts_subject ON attempts(run_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_attempts_activity ON attempts(run_id, activity);
`

const migration001Down = `
DROP TABLE IF EXISTS attempts;
DROP TABLE IF EXISTS runs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: IDENTITY MAPPINGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create identity mappings table
-- Version: 002

-- The pseudonym-to-ID mapping inferred for a run. Injective per run:
-- each pseudonym maps to at most one ID and vice versa.
CREATE TABLE IF NOT EXISTS identity_mappings (
    id BIGSERIAL PRIMARY KEY,
    run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    pseudonym VARCHAR(100) NOT NULL,
    subject_id VARCHAR(100) NOT NULL,
    match_fraction DECIMAL(5,4) NOT NULL DEFAULT 1.0,

    CONSTRAINT unique_pseudonym UNIQUE (run_id, pseudonym),
    CONSTRAINT unique_subject UNIQUE (run_id, subject_id),
    CONSTRAINT valid_fraction CHECK (match_fraction >= 0 AND match_fraction <= 1)
);

CREATE INDEX IF NOT EXISTS idx_mappings_run_id ON identity_mappings(run_id);
`

const migration002Down = `
DROP TABLE IF EXISTS identity_mappings;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PARTICIPANT FLAGS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create participant flags table
-- Version: 003

-- Aggregated per-participant status for a run. Mirrors what the
-- completion report sends to SCB, so old reports stay reproducible.
CREATE TABLE IF NOT EXISTS participant_flags (
    id BIGSERIAL PRIMARY KEY,
    run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    participant_id VARCHAR(100) NOT NULL,
    started BOOLEAN NOT NULL DEFAULT TRUE,
    answered_once BOOLEAN NOT NULL DEFAULT FALSE,
    finished BOOLEAN NOT NULL DEFAULT FALSE,
    n_answered INTEGER NOT NULL DEFAULT 0,
    first_answer_at TIMESTAMP WITH TIME ZONE,
    last_answer_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT unique_participant UNIQUE (run_id, participant_id),
    CONSTRAINT valid_n_answered CHECK (n_answered >= 0)
);

CREATE INDEX IF NOT EXISTS idx_flags_run_id ON participant_flags(run_id);
CREATE INDEX IF NOT EXISTS idx_flags_finished ON participant_flags(run_id) WHERE finished;
`

const migration003Down = `
DROP TABLE IF EXISTS participant_flags;
`
