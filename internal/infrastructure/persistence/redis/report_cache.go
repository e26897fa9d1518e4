package redis

import (
	"context"
	"time"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
)

// ReportCache is a thin typed wrapper over Cache for the derived report
// data: module summaries, cumulative series and the Canvas user mapping.
type ReportCache struct {
	cache *Cache
}

// NewReportCache creates a new ReportCache.
func NewReportCache(cache *Cache) *ReportCache {
	return &ReportCache{cache: cache}
}

// SetSummary caches a module summary for a run. The summary type lives in
// the application layer; anything JSON-serializable works.
func (rc *ReportCache) SetSummary(ctx context.Context, runID string, summary interface{}) error {
	return rc.cache.Set(ctx, SummaryKey(runID), summary, TTLSummaryCache)
}

// GetSummary retrieves a cached module summary.
// Returns ErrCacheMiss if not cached.
func (rc *ReportCache) GetSummary(ctx context.Context, runID string, dest interface{}) error {
	return rc.cache.Get(ctx, SummaryKey(runID), dest)
}

// SetSeries caches a cumulative answer series.
// participantID is empty for the whole-group series.
func (rc *ReportCache) SetSeries(ctx context.Context, runID, participantID string, series []participant.SeriesPoint) error {
	return rc.cache.Set(ctx, SeriesKey(runID, participantID), series, TTLSeriesCache)
}

// GetSeries retrieves a cached cumulative answer series.
// Returns ErrCacheMiss if not cached.
func (rc *ReportCache) GetSeries(ctx context.Context, runID, participantID string) ([]participant.SeriesPoint, error) {
	var series []participant.SeriesPoint
	if err := rc.cache.Get(ctx, SeriesKey(runID, participantID), &series); err != nil {
		return nil, err
	}
	return series, nil
}

// SetCanvasUserMapping caches the account-name-to-user-ID mapping.
func (rc *ReportCache) SetCanvasUserMapping(ctx context.Context, accountID int, mapping map[string]int) error {
	return rc.cache.Set(ctx, CanvasUsersKey(accountID), mapping, TTLCanvasUserMapping)
}

// GetCanvasUserMapping retrieves the cached Canvas user mapping.
// Returns ErrCacheMiss if not cached.
func (rc *ReportCache) GetCanvasUserMapping(ctx context.Context, accountID int) (map[string]int, error) {
	var mapping map[string]int
	if err := rc.cache.Get(ctx, CanvasUsersKey(accountID), &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// InvalidateRun drops everything cached for a run. Called when a new
// preprocessing run supersedes an old one.
func (rc *ReportCache) InvalidateRun(ctx context.Context, runID string) error {
	if err := rc.cache.Delete(ctx, SummaryKey(runID)); err != nil {
		return err
	}
	return rc.cache.DeleteByPattern(ctx, PrefixSeries+runID+":*")
}

// AcquireSendLock takes the distributed feedback-send lock. Two concurrent
// feedback runs would double-message participants; the lock prevents that
// when the job is scheduled on more than one host.
func (rc *ReportCache) AcquireSendLock(ctx context.Context, runID string) (bool, error) {
	return rc.cache.SetNX(ctx, LockKey("feedback:"+runID), time.Now().UTC(), TTLDistributedLock)
}

// ReleaseSendLock releases the feedback-send lock.
func (rc *ReportCache) ReleaseSendLock(ctx context.Context, runID string) error {
	return rc.cache.Delete(ctx, LockKey("feedback:"+runID))
}
