package export

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
)

func day(d int) time.Time {
	return time.Date(2022, 11, d, 14, 30, 0, 0, time.UTC)
}

func TestMarshalParticipant_ExactFieldNames(t *testing.T) {
	p, err := participant.New("ansgar_anka")
	require.NoError(t, err)
	p.InitGrids(2, 2)
	require.NoError(t, p.SetCell(1, 0, day(1), true))
	require.NoError(t, p.SetCell(2, 1, day(2), false))

	data, err := MarshalParticipant(p)
	require.NoError(t, err)

	// The field names are a file format shared with the analysis side.
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "ID")
	assert.Contains(t, doc, "Number of sessions")
	assert.Contains(t, doc, "Number of skills tested")
	assert.Contains(t, doc, "Results")

	var parsed ParticipantResults
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "ansgar_anka", parsed.ID)
	assert.Equal(t, 2, parsed.Sessions)
	assert.Equal(t, 2, parsed.Skills)
	assert.Equal(t, [][]bool{{true, false}, {false, false}}, parsed.Results)
}

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closableBuffer) Close() error {
	b.closed = true
	return nil
}

func TestWriteParticipantResults_OneFilePerParticipant(t *testing.T) {
	roster := participant.NewRoster()
	for _, id := range []string{"bob", "alice"} {
		p, err := roster.Register(id)
		require.NoError(t, err)
		p.InitGrids(1, 1)
	}

	files := map[string]*closableBuffer{}
	err := WriteParticipantResults(roster, func(id string) (io.WriteCloser, error) {
		buf := &closableBuffer{}
		files[id] = buf
		return buf, nil
	})
	require.NoError(t, err)

	require.Len(t, files, 2)
	for id, buf := range files {
		assert.True(t, buf.closed, "file for %s not closed", id)
		var parsed ParticipantResults
		require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
		assert.Equal(t, id, parsed.ID)
	}
}

func TestWriteIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIDs(&buf, []string{"alice", "bob"}))
	assert.JSONEq(t, `{"IDs":["alice","bob"]}`, buf.String())

	buf.Reset()
	require.NoError(t, WriteIDs(&buf, nil))
	assert.JSONEq(t, `{"IDs":[]}`, buf.String())
}

func TestWriteFullResults_RoundTripsThroughLogSpelling(t *testing.T) {
	table := attempt.EmptyTable()
	r, err := attempt.NewRecord("ansgar_anka", "Backup_Q1", day(1), 1, true)
	require.NoError(t, err)
	table.Append(r)
	r, err = attempt.NewRecord("ansgar_anka", "Backup_Q1", day(2), 2, false)
	require.NoError(t, err)
	table.Append(r)

	var buf bytes.Buffer
	require.NoError(t, WriteFullResults(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student ID,Date Created,Activity Title,Attempt Number,Correct?", lines[0])
	assert.Equal(t, "ansgar_anka,2022-11-01 14:30:00,Backup_Q1,1,True", lines[1])
	assert.Equal(t, "ansgar_anka,2022-11-02 14:30:00,Backup_Q1,2,False", lines[2])
}

func TestWriteSCBReport_Sentinels(t *testing.T) {
	roster := participant.NewRoster()

	// finished: all cells populated.
	done, err := roster.Register("bob")
	require.NoError(t, err)
	done.InitGrids(1, 1)
	require.NoError(t, done.SetCell(1, 0, day(3), true))

	// started but not finished.
	partial, err := roster.Register("alice")
	require.NoError(t, err)
	partial.InitGrids(1, 2)
	require.NoError(t, partial.SetCell(1, 0, day(5), false))

	// never answered.
	idle, err := roster.Register("carol")
	require.NoError(t, err)
	idle.InitGrids(1, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteSCBReport(&buf, roster))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Personnummer,Uppskattad tid,Startdatum,Avslutsdatum", lines[0])

	// Rows follow sorted participant-ID order: alice, bob, carol.
	assert.Equal(t, "Ej känt,30 min,2022-11-05,Ej klar", lines[1])
	assert.Equal(t, "Ej känt,30 min,2022-11-03,2022-11-03", lines[2])
	assert.Equal(t, "Ej känt,30 min,Ej känt,Ej klar", lines[3])
}

func TestWriteSeries(t *testing.T) {
	series := []participant.SeriesPoint{
		{Date: day(1), Count: 2},
		{Date: day(2), Count: 5},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, series))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Cumulative answers", lines[0])
	assert.Equal(t, "2022-11-01 14:30:00,2", lines[1])
	assert.Equal(t, "2022-11-02 14:30:00,5", lines[2])
}
