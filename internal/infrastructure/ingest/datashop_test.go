package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
)

func testResolver(t *testing.T, sessions int) *skillmap.Resolver {
	t.Helper()
	catalogue, err := skillmap.NewCatalogue([]skillmap.Competency{
		{Name: "IT-säkerhet", Skills: []string{"Backup", "Phishing"}},
	})
	require.NoError(t, err)
	return skillmap.NewResolver(catalogue, sessions)
}

func contextXML(userID, instant, label string) string {
	return `<context_message context_message_id="c1" name="START_PROBLEM">
  <meta>
    <user_id>` + userID + `</user_id>
    <session_id>s1</session_id>
    <time>` + instant + `</time>
    <time_zone>UTC</time_zone>
  </meta>
  <dataset>
    <name>demo</name>
    <level type="Page">
      <name>page</name>
      <level type="Activity">
        <name>activity</name>
        <problem><name>` + label + `</name></problem>
      </level>
    </level>
  </dataset>
</context_message>`
}

func tutorXML(evaluation string) string {
	return `<tool_message context_message_id="c1"><semantic_event name="ATTEMPT"/></tool_message>
<tutor_message context_message_id="c1">
  <semantic_event name="RESULT"/>
  <action_evaluation>` + evaluation + `</action_evaluation>
</tutor_message>`
}

func TestDatashopReader_ParsesContextTutorPairs(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>
<tutor_related_message_sequence>
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("CORRECT") + `
` + contextXML("pseudo-1", "2022-11-02 09:05:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("INCORRECT") + `
` + contextXML("pseudo-2", "2022-11-02 09:01:00", "Flervalsfråga phishing_q1,") + `
` + tutorXML("CORRECT") + `
</tutor_related_message_sequence>`

	table, report, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
	require.NoError(t, err)
	assert.Zero(t, report.MalformedContexts)
	assert.Zero(t, report.DiscardedTutors)
	assert.Empty(t, report.OutcomeErrors)

	records := table.Records()
	require.Len(t, records, 3)

	// pseudo-1's two attempts at Backup_Q1 get ordinal attempt numbers.
	assert.Equal(t, "pseudo-1", records[0].SubjectID)
	assert.Equal(t, attempt.ActivityName("Backup_Q1"), records[0].Activity)
	assert.Equal(t, 1, records[0].Number)
	assert.True(t, records[0].Correct)
	assert.Equal(t, time.Date(2022, 11, 2, 9, 0, 0, 0, time.UTC), records[0].Timestamp)

	assert.Equal(t, 2, records[1].Number)
	assert.False(t, records[1].Correct)

	// Raw problem names are matched case-insensitively to canonical names.
	assert.Equal(t, "pseudo-2", records[2].SubjectID)
	assert.Equal(t, attempt.ActivityName("Phishing_Q1"), records[2].Activity)
}

func TestDatashopReader_MalformedContextDiscardsFollowingTutors(t *testing.T) {
	src := `<root>
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "label-without-second-token") + `
` + tutorXML("CORRECT") + `
` + contextXML("pseudo-1", "2022-11-02 09:05:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("CORRECT") + `
</root>`

	table, report, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 1, report.MalformedContexts)
	assert.Equal(t, 1, report.DiscardedTutors)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, attempt.ActivityName("Backup_Q1"), table.Records()[0].Activity)
}

func TestDatashopReader_UnmatchedProblemsAreCountedNotKept(t *testing.T) {
	src := `<root>
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "Aktivitet Welcome_Survey1,") + `
` + tutorXML("CORRECT") + `
</root>`

	table, report, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, 1, report.UnmatchedProblems)
	assert.Zero(t, report.MalformedContexts)
}

func TestDatashopReader_UnrecognizedEvaluationIsFatalToRecordOnly(t *testing.T) {
	src := `<root>
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("HINT") + `
` + contextXML("pseudo-1", "2022-11-02 09:05:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("CORRECT") + `
</root>`

	table, report, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, report.OutcomeErrors, 1)
	assert.ErrorIs(t, report.OutcomeErrors[0], attempt.ErrUnknownOutcome)
	require.Equal(t, 1, table.Len())
	assert.True(t, table.Records()[0].Correct)
}

func TestDatashopReader_Deterministic(t *testing.T) {
	src := `<root>
` + contextXML("pseudo-2", "2022-11-02 09:02:00", "Flervalsfråga Phishing_Q1,") + `
` + tutorXML("CORRECT") + `
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("INCORRECT") + `
` + contextXML("pseudo-1", "2022-11-02 08:55:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("CORRECT") + `
</root>`

	first, _, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := NewDatashopReader(testResolver(t, 1), nil).Read(strings.NewReader(src))
		require.NoError(t, err)
		assert.Equal(t, first.Records(), again.Records())
	}

	// Subjects appear in first-appearance order, timestamps ascending
	// within a (subject, activity) pair.
	records := first.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "pseudo-2", records[0].SubjectID)
	assert.Equal(t, "pseudo-1", records[1].SubjectID)
	assert.True(t, records[1].Timestamp.Before(records[2].Timestamp))
	assert.Equal(t, 1, records[1].Number)
	assert.Equal(t, 2, records[2].Number)
}

func TestDatashopReader_UnknownSessionCountAbortsParse(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>
<tutor_related_message_sequence>
` + contextXML("pseudo-1", "2022-11-02 09:00:00", "Flervalsfråga Backup_Q1,") + `
` + tutorXML("CORRECT") + `
</tutor_related_message_sequence>`

	// Session count neither supplied nor inferred: matching is impossible,
	// so the read must fail instead of returning an empty table.
	table, _, err := NewDatashopReader(testResolver(t, 0), nil).Read(strings.NewReader(src))
	require.ErrorIs(t, err, skillmap.ErrSessionsUnknown)
	assert.Nil(t, table)
}
