package participant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2022, 11, d, 12, 0, 0, 0, time.UTC)
}

func TestNew_CaseFoldsID(t *testing.T) {
	p, err := New("  Ansgar_Anka ")
	require.NoError(t, err)
	assert.Equal(t, "ansgar_anka", p.ID)

	_, err = New("   ")
	assert.ErrorIs(t, err, ErrInvalidID)

	// An ID with internal whitespace cannot name an account.
	_, err = New("two words")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestParticipant_SetCellAndFlags(t *testing.T) {
	p, err := New("ansgar_anka")
	require.NoError(t, err)

	// Before grids exist nothing can be set.
	assert.ErrorIs(t, p.SetCell(1, 0, day(1), true), ErrGridsNotReady)

	p.InitGrids(2, 3)
	assert.True(t, p.GridsReady())
	assert.Equal(t, Flags{Started: true, AnsweredOnce: false, Finished: false}, p.Flags())

	require.NoError(t, p.SetCell(1, 0, day(2), true))
	require.NoError(t, p.SetCell(2, 1, day(1), false))

	assert.Equal(t, 2, p.NAnswered())
	assert.True(t, p.Answered(1, 0))
	assert.False(t, p.Answered(1, 1))
	assert.True(t, p.CorrectFirstTry(1, 0))
	assert.False(t, p.CorrectFirstTry(2, 1))
	assert.Equal(t, Flags{Started: true, AnsweredOnce: true, Finished: false}, p.Flags())

	// First and last answer dates follow cell dates, not call order.
	require.NotNil(t, p.FirstAnswerDate)
	require.NotNil(t, p.LastAnswerDate)
	assert.Equal(t, day(1), *p.FirstAnswerDate)
	assert.Equal(t, day(2), *p.LastAnswerDate)

	assert.ErrorIs(t, p.SetCell(0, 0, day(1), true), ErrCellOutOfRange)
	assert.ErrorIs(t, p.SetCell(3, 0, day(1), true), ErrCellOutOfRange)
	assert.ErrorIs(t, p.SetCell(1, 3, day(1), true), ErrCellOutOfRange)
}

func TestParticipant_Finished(t *testing.T) {
	p, err := New("ansgar_anka")
	require.NoError(t, err)
	p.InitGrids(2, 2)

	for session := 1; session <= 2; session++ {
		for skill := 0; skill < 2; skill++ {
			require.NoError(t, p.SetCell(session, skill, day(session), skill == 0))
		}
	}

	assert.True(t, p.Finished())
	assert.Equal(t, 4, p.NAnswered())
	assert.Equal(t, []int{2, 2}, p.AnsweredPerSession())
	assert.Equal(t, []int{1, 1}, p.CorrectPerSession())
}

func TestParticipant_CorrectInEverySession(t *testing.T) {
	p, err := New("ansgar_anka")
	require.NoError(t, err)
	p.InitGrids(3, 2)

	// Skill 0 correct in all three sessions, skill 1 misses session 2.
	for session := 1; session <= 3; session++ {
		require.NoError(t, p.SetCell(session, 0, day(session), true))
		require.NoError(t, p.SetCell(session, 1, day(session), session != 2))
	}

	assert.True(t, p.CorrectInEverySession(0))
	assert.False(t, p.CorrectInEverySession(1))
}

func TestParticipant_ResultsMatrixIsACopy(t *testing.T) {
	p, err := New("ansgar_anka")
	require.NoError(t, err)
	p.InitGrids(1, 2)
	require.NoError(t, p.SetCell(1, 0, day(1), true))

	m := p.ResultsMatrix()
	require.Equal(t, [][]bool{{true, false}}, m)

	m[0][0] = false
	assert.True(t, p.CorrectFirstTry(1, 0))
}

func TestCumulativeByDate(t *testing.T) {
	assert.Nil(t, CumulativeByDate(nil))

	dates := []time.Time{day(3), day(1), day(3), day(2)}
	series := CumulativeByDate(dates)

	require.Len(t, series, 3)
	assert.Equal(t, SeriesPoint{Date: day(1), Count: 1}, series[0])
	assert.Equal(t, SeriesPoint{Date: day(2), Count: 2}, series[1])
	assert.Equal(t, SeriesPoint{Date: day(3), Count: 4}, series[2])

	// Counts never decrease and end at len(dates).
	for i := 1; i < len(series); i++ {
		assert.GreaterOrEqual(t, series[i].Count, series[i-1].Count)
	}
}

func TestRoster_RegisterAndSortedIDs(t *testing.T) {
	roster := NewRoster()

	_, err := roster.Register("Mimmi_Pigg")
	require.NoError(t, err)
	_, err = roster.Register("ansgar_anka")
	require.NoError(t, err)

	assert.Equal(t, 2, roster.Len())
	assert.Equal(t, []string{"ansgar_anka", "mimmi_pigg"}, roster.SortedIDs())

	p, ok := roster.Get("mimmi_pigg")
	require.True(t, ok)
	assert.Equal(t, "mimmi_pigg", p.ID)
}

func TestRoster_GroupCumulativeByDate(t *testing.T) {
	roster := NewRoster()
	a, err := roster.Register("alice")
	require.NoError(t, err)
	b, err := roster.Register("bob")
	require.NoError(t, err)

	a.InitGrids(1, 2)
	b.InitGrids(1, 2)
	require.NoError(t, a.SetCell(1, 0, day(1), true))
	require.NoError(t, b.SetCell(1, 0, day(1), false))
	require.NoError(t, b.SetCell(1, 1, day(4), true))

	series := roster.GroupCumulativeByDate()
	require.Len(t, series, 2)
	assert.Equal(t, 2, series[0].Count)
	assert.Equal(t, 3, series[1].Count)
}
