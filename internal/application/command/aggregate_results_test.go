package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
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

func testRoster(t *testing.T, ids ...string) *participant.Roster {
	t.Helper()
	roster := participant.NewRoster()
	for _, id := range ids {
		_, err := roster.Register(id)
		require.NoError(t, err)
	}
	return roster
}

func at(minute int) time.Time {
	return time.Date(2022, 11, 2, 9, minute, 0, 0, time.UTC)
}

func record(t *testing.T, subject string, activity attempt.ActivityName, ts time.Time, number int, correct bool) attempt.Record {
	t.Helper()
	r, err := attempt.NewRecord(subject, activity, ts, number, correct)
	require.NoError(t, err)
	return r
}

func TestAggregateResults_PopulatesFirstTryCells(t *testing.T) {
	roster := testRoster(t, "ansgar_anka")
	table := attempt.NewTable([]attempt.Record{
		record(t, "ansgar_anka", "Backup_Q1", at(0), 1, true),
		record(t, "ansgar_anka", "Backup_Q1", at(1), 2, false), // later tries never matter
		record(t, "ansgar_anka", "Phishing_Q1", at(2), 1, false),
	})

	handler := NewAggregateResultsHandler(roster, testResolver(t, 1), nil)
	result, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: table, RunID: "run-1"})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Participants)
	assert.Equal(t, 2, result.CellsPopulated)
	assert.Empty(t, result.UnknownSubjects)

	p, ok := roster.Get("ansgar_anka")
	require.True(t, ok)
	assert.True(t, p.CorrectFirstTry(1, 0))  // Backup
	assert.False(t, p.CorrectFirstTry(1, 1)) // Phishing
	assert.True(t, p.Finished())
}

func TestAggregateResults_EmptyTableIsDiagnosticNotError(t *testing.T) {
	handler := NewAggregateResultsHandler(testRoster(t, "ansgar_anka"), testResolver(t, 1), nil)

	result, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: attempt.EmptyTable()})
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	result, err = handler.Handle(context.Background(), AggregateResultsCommand{Table: nil})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestAggregateResults_UnknownSessionCountIsAnError(t *testing.T) {
	table := attempt.NewTable([]attempt.Record{
		record(t, "ansgar_anka", "Backup_Q1", at(0), 1, true),
	})
	handler := NewAggregateResultsHandler(testRoster(t, "ansgar_anka"), testResolver(t, 0), nil)

	_, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: table})
	require.Error(t, err)
}

func TestAggregateResults_WarnsOnUnregisteredSubjects(t *testing.T) {
	roster := testRoster(t, "ansgar_anka")
	table := attempt.NewTable([]attempt.Record{
		record(t, "ansgar_anka", "Backup_Q1", at(0), 1, true),
		record(t, "Stranger", "Backup_Q1", at(1), 1, true),
		record(t, "drifter", "Backup_Q1", at(2), 1, true),
	})

	handler := NewAggregateResultsHandler(roster, testResolver(t, 1), nil)
	result, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: table})
	require.NoError(t, err)

	assert.Equal(t, []string{"drifter", "stranger"}, result.UnknownSubjects)
	assert.Equal(t, 1, result.Participants)
}

func TestAggregateResults_EarliestFirstTryWins(t *testing.T) {
	roster := testRoster(t, "ansgar_anka")
	// Two number-1 records (bursts share a derived ordinal): the earlier
	// timestamp decides the cell.
	table := attempt.NewTable([]attempt.Record{
		record(t, "ansgar_anka", "Backup_Q1", at(5), 1, false),
		record(t, "ansgar_anka", "Backup_Q1", at(0), 1, true),
	})

	handler := NewAggregateResultsHandler(roster, testResolver(t, 1), nil)
	_, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: table})
	require.NoError(t, err)

	p, _ := roster.Get("ansgar_anka")
	assert.True(t, p.CorrectFirstTry(1, 0))
	assert.Equal(t, at(0), *p.AnswerDate(1, 0))
}

func TestAggregateResults_ParticipantWithoutRecordsStaysUnstarted(t *testing.T) {
	roster := testRoster(t, "ansgar_anka", "mimmi_pigg")
	table := attempt.NewTable([]attempt.Record{
		record(t, "ansgar_anka", "Backup_Q1", at(0), 1, true),
	})

	handler := NewAggregateResultsHandler(roster, testResolver(t, 1), nil)
	result, err := handler.Handle(context.Background(), AggregateResultsCommand{Table: table})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Participants)
	idle, _ := roster.Get("mimmi_pigg")
	assert.True(t, idle.GridsReady())
	assert.Equal(t, 0, idle.NAnswered())
	assert.False(t, idle.Flags().AnsweredOnce)
}
