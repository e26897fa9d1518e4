package attempt

import (
	"context"
	"time"
)

// ArchiveRepository persists unified attempt tables for audit across batch
// runs. Implementations live in infrastructure/persistence.
type ArchiveRepository interface {
	// SaveRun stores the unified attempt table under a batch run ID.
	SaveRun(ctx context.Context, runID string, startedAt time.Time, table *Table) error

	// LoadRun returns the attempt table archived for a batch run.
	// Returns shared.ErrNotFound if the run is unknown.
	LoadRun(ctx context.Context, runID string) (*Table, error)

	// ListRuns returns archived run IDs, newest first.
	ListRuns(ctx context.Context, limit int) ([]string, error)
}
