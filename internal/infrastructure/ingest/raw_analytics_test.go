package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
)

const rawAnalyticsSample = "Part Attempt ID\tStudent ID\tDate Created\tActivity Title\tAttempt Number\tGraded?\tCorrect?\n" +
	"a-1\tpseudo-1\tSeptember 6, 2022 at 1:05 PM UTC\tBackup_Q1\t1\ttrue\tTrue\n" +
	"a-2\tpseudo-1\tSeptember 6, 2022 at 1:06 PM UTC\tBackup_Q1\t2\ttrue\tFalse\n" +
	"a-3\tpseudo-2\tSeptember 6, 2022 at 1:30 PM UTC\tWelcome Survey\t1\tfalse\tTrue\n"

func TestRawAnalyticsReader_ParsesRows(t *testing.T) {
	table, report, err := NewRawAnalyticsReader(nil).Read(strings.NewReader(rawAnalyticsSample))
	require.NoError(t, err)
	assert.Zero(t, report.SkippedRows)

	records := table.Records()
	require.Len(t, records, 3)

	assert.Equal(t, "pseudo-1", records[0].SubjectID)
	assert.Equal(t, attempt.ActivityName("Backup_Q1"), records[0].Activity)
	assert.Equal(t, time.Date(2022, 9, 6, 13, 5, 0, 0, time.UTC), records[0].Timestamp)
	assert.Equal(t, 1, records[0].Number)
	assert.True(t, records[0].Correct)

	assert.Equal(t, 2, records[1].Number)
	assert.False(t, records[1].Correct)

	// Non-question activity titles are kept verbatim; aggregation filters
	// them, not the reader.
	assert.Equal(t, attempt.ActivityName("Welcome Survey"), records[2].Activity)
}

func TestRawAnalyticsReader_SkipsUnparseableRows(t *testing.T) {
	src := "Student ID\tDate Created\tActivity Title\tAttempt Number\tCorrect?\n" +
		"pseudo-1\tnot a timestamp\tBackup_Q1\t1\tTrue\n" +
		"pseudo-1\tSeptember 6, 2022 at 1:05 PM UTC\tBackup_Q1\tNaN\tTrue\n" +
		"pseudo-1\tSeptember 6, 2022 at 1:05 PM UTC\tBackup_Q1\t1\tmaybe\n" +
		"  \tSeptember 6, 2022 at 1:05 PM UTC\tBackup_Q1\t1\tTrue\n" +
		"pseudo-1\tSeptember 6, 2022 at 1:10 PM UTC\tBackup_Q1\t1\tTrue\n"

	table, report, err := NewRawAnalyticsReader(nil).Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 4, report.SkippedRows)
	assert.Len(t, report.RowErrors, 4)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, time.Date(2022, 9, 6, 13, 10, 0, 0, time.UTC), table.Records()[0].Timestamp)
}

func TestRawAnalyticsReader_MissingColumnIsFatal(t *testing.T) {
	src := "Student ID\tDate Created\tActivity Title\n" +
		"pseudo-1\tSeptember 6, 2022 at 1:05 PM UTC\tBackup_Q1\n"

	_, _, err := NewRawAnalyticsReader(nil).Read(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Attempt Number")
}

func TestReadParticipantIDs(t *testing.T) {
	src := "Ansgar_Anka\n\nmimmi_pigg\n  LÅNGBEN  \n"

	ids, err := ReadParticipantIDs(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"ansgar_anka", "mimmi_pigg", "långben"}, ids)
}
