package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawAnalytics(t *testing.T) {
	got, err := ParseRawAnalytics("September 6, 2022 at 1:05 PM UTC")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 9, 6, 13, 5, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseRawAnalytics("2022-09-06 13:05:42")
	assert.Error(t, err)
}

func TestParseDatashop(t *testing.T) {
	got, err := ParseDatashop("2022-09-06 13:05:42")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 9, 6, 13, 5, 42, 0, time.UTC), got)

	_, err = ParseDatashop("September 6, 2022 at 1:05 PM UTC")
	assert.Error(t, err)
}

func TestReportDate_StockholmRollover(t *testing.T) {
	// 23:30 UTC in summer is already the next day in Stockholm.
	late := time.Date(2022, 6, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2022-06-11", ReportDate(late))

	// In winter the offset is one hour.
	winter := time.Date(2022, 12, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2022-12-11", ReportDate(winter))
}
