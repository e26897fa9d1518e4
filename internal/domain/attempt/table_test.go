package attempt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(minute int) time.Time {
	return time.Date(2022, 11, 2, 9, minute, 0, 0, time.UTC)
}

func rec(t *testing.T, subject string, activity ActivityName, at time.Time, number int, correct bool) Record {
	t.Helper()
	r, err := NewRecord(subject, activity, at, number, correct)
	require.NoError(t, err)
	return r
}

func TestTable_PreservesOrder(t *testing.T) {
	table := EmptyTable()
	table.Append(rec(t, "bob", "Backup_Q1", ts(0), 1, true))
	table.Append(rec(t, "alice", "Backup_Q1", ts(1), 1, false))
	table.Append(rec(t, "bob", "Phishing_Q1", ts(2), 1, true))

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"bob", "alice"}, table.SubjectIDs())

	records := table.Records()
	assert.Equal(t, ActivityName("Backup_Q1"), records[0].Activity)
	assert.Equal(t, ActivityName("Phishing_Q1"), records[2].Activity)
}

func TestTable_RemapSubjects_DropsUnmatched(t *testing.T) {
	table := EmptyTable()
	table.Append(rec(t, "pseudo-1", "Backup_Q1", ts(0), 1, true))
	table.Append(rec(t, "pseudo-2", "Backup_Q1", ts(1), 1, false))
	table.Append(rec(t, "pseudo-1", "Backup_Q2", ts(2), 1, true))

	remapped := table.RemapSubjects(map[string]string{"pseudo-1": "ansgar_anka"})

	require.Equal(t, 2, remapped.Len())
	for _, r := range remapped.Records() {
		assert.Equal(t, "ansgar_anka", r.SubjectID)
	}
	// pseudo-2 had no mapping entry and is gone.
	assert.Equal(t, []string{"ansgar_anka"}, remapped.SubjectIDs())
	// The source table is unchanged.
	assert.Equal(t, 3, table.Len())
}

func TestTable_DeriveAttemptNumbers(t *testing.T) {
	table := EmptyTable()
	// Out-of-order arrival: the second timestamp appears first.
	table.Append(rec(t, "bob", "Backup_Q1", ts(5), 1, true))
	table.Append(rec(t, "bob", "Backup_Q1", ts(0), 1, false))
	table.Append(rec(t, "bob", "Backup_Q1", ts(9), 1, true))
	// A different (subject, activity) pair counts separately.
	table.Append(rec(t, "alice", "Backup_Q1", ts(5), 1, true))

	derived := table.DeriveAttemptNumbers()
	records := derived.Records()

	assert.Equal(t, 2, records[0].Number)
	assert.Equal(t, 1, records[1].Number)
	assert.Equal(t, 3, records[2].Number)
	assert.Equal(t, 1, records[3].Number)
	// Input order is untouched.
	assert.Equal(t, ts(5), records[0].Timestamp)
}

func TestTable_DeriveAttemptNumbers_BurstSharesOrdinal(t *testing.T) {
	table := EmptyTable()
	table.Append(rec(t, "bob", "Backup_Q1", ts(0), 1, false))
	table.Append(rec(t, "bob", "Backup_Q1", ts(0), 1, true))
	table.Append(rec(t, "bob", "Backup_Q1", ts(3), 1, true))

	derived := table.DeriveAttemptNumbers()
	records := derived.Records()

	// Records in a burst at one timestamp share the ordinal.
	assert.Equal(t, 1, records[0].Number)
	assert.Equal(t, 1, records[1].Number)
	assert.Equal(t, 2, records[2].Number)
}

func TestTable_TimestampsBySubject(t *testing.T) {
	table := EmptyTable()
	table.Append(rec(t, "bob", "Backup_Q1", ts(0), 1, true))
	table.Append(rec(t, "alice", "Backup_Q1", ts(1), 1, true))
	table.Append(rec(t, "bob", "Backup_Q2", ts(2), 1, true))

	bygroup := table.TimestampsBySubject()
	assert.Equal(t, []time.Time{ts(0), ts(2)}, bygroup["bob"])
	assert.Equal(t, []time.Time{ts(1)}, bygroup["alice"])
}

func TestTable_Merge(t *testing.T) {
	a := NewTable([]Record{rec(t, "bob", "Backup_Q1", ts(0), 1, true)})
	b := NewTable([]Record{rec(t, "alice", "Backup_Q1", ts(1), 1, false)})

	merged := a.Merge(b)
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, "bob", merged.Records()[0].SubjectID)
	assert.Equal(t, "alice", merged.Records()[1].SubjectID)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}
