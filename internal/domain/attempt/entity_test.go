package attempt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	correct, err := ParseOutcome("CORRECT")
	require.NoError(t, err)
	assert.True(t, correct.Bool())

	incorrect, err := ParseOutcome("INCORRECT")
	require.NoError(t, err)
	assert.False(t, incorrect.Bool())

	// Anything else is a hard error, never coerced.
	_, err = ParseOutcome("HINT")
	assert.ErrorIs(t, err, ErrUnknownOutcome)

	_, err = ParseOutcome("correct")
	assert.ErrorIs(t, err, ErrUnknownOutcome)

	_, err = ParseOutcome("")
	assert.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestActivityName_Split(t *testing.T) {
	skill, session, err := ActivityName("Backup_Q2").Split()
	require.NoError(t, err)
	assert.Equal(t, "Backup", skill)
	assert.Equal(t, 2, session)

	// Underscores inside the skill part belong to the skill.
	skill, session, err = ActivityName("Safe_travel_wifi_Q10").Split()
	require.NoError(t, err)
	assert.Equal(t, "Safe_travel_wifi", skill)
	assert.Equal(t, 10, session)

	for _, bad := range []string{"Backup", "Backup_Q", "Backup_Q0", "Backup_Qx", "_Q2", ""} {
		_, _, err := ActivityName(bad).Split()
		assert.ErrorIs(t, err, ErrNotAnActivityName, "input %q", bad)
	}
}

func TestFormatActivityName_RoundTrip(t *testing.T) {
	name := FormatActivityName("Phishing", 3)
	assert.Equal(t, ActivityName("Phishing_Q3"), name)

	skill, session, err := name.Split()
	require.NoError(t, err)
	assert.Equal(t, "Phishing", skill)
	assert.Equal(t, 3, session)
}

func TestProblemNameFromLabel(t *testing.T) {
	// Fixed rule: second whitespace token, final character dropped.
	name, err := ProblemNameFromLabel("Flervalsfråga Backup_Q2,")
	require.NoError(t, err)
	assert.Equal(t, "Backup_Q2", name)

	name, err = ProblemNameFromLabel("Activity Phishing_Q1: something else")
	require.NoError(t, err)
	assert.Equal(t, "Phishing_Q1", name)

	_, err = ProblemNameFromLabel("single-token")
	assert.ErrorIs(t, err, ErrMalformedLabel)

	_, err = ProblemNameFromLabel("short x")
	assert.ErrorIs(t, err, ErrMalformedLabel)
}

func TestNewRecord_Validation(t *testing.T) {
	ts := time.Date(2022, 11, 2, 9, 30, 0, 0, time.UTC)

	r, err := NewRecord("ansgar_anka", "Backup_Q1", ts, 1, true)
	require.NoError(t, err)
	assert.True(t, r.IsFirstTry())
	assert.True(t, r.Correct)

	_, err = NewRecord("  ", "Backup_Q1", ts, 1, true)
	assert.ErrorIs(t, err, ErrInvalidSubjectID)

	_, err = NewRecord("ansgar_anka", "not-an-activity", ts, 1, true)
	assert.ErrorIs(t, err, ErrInvalidActivity)

	_, err = NewRecord("ansgar_anka", "Backup_Q1", time.Time{}, 1, true)
	assert.ErrorIs(t, err, ErrZeroTimestamp)

	_, err = NewRecord("ansgar_anka", "Backup_Q1", ts, 0, true)
	assert.ErrorIs(t, err, ErrInvalidAttemptNum)
}

func TestNewRecord_NormalizesToUTC(t *testing.T) {
	stockholm, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)

	local := time.Date(2022, 11, 2, 10, 30, 0, 0, stockholm)
	r, err := NewRecord("ansgar_anka", "Backup_Q1", local, 1, false)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.True(t, r.Timestamp.Equal(local))
}
