package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/pkg/logger"
	"github.com/demodigi-hub/results-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RAW ANALYTICS TSV READER
// ══════════════════════════════════════════════════════════════════════════════

// Columns of the raw_analytics export we pick out. The file carries more;
// the rest is ignored.
const (
	colStudentID     = "Student ID"
	colDateCreated   = "Date Created"
	colActivityTitle = "Activity Title"
	colAttemptNumber = "Attempt Number"
	colCorrect       = "Correct?"
)

// RawAnalyticsReport collects the non-fatal issues of one parse run.
type RawAnalyticsReport struct {
	// SkippedRows counts rows dropped because a field failed to parse.
	SkippedRows int

	// RowErrors lists per-row parse failures, each fatal to its row only.
	RowErrors []error
}

// RawAnalyticsReader parses the tab-separated raw_analytics export.
type RawAnalyticsReader struct {
	log *logger.Logger
}

// NewRawAnalyticsReader creates a reader.
func NewRawAnalyticsReader(log *logger.Logger) *RawAnalyticsReader {
	if log == nil {
		log = logger.Nop()
	}
	return &RawAnalyticsReader{log: log}
}

// Read parses the TSV stream into a flat attempt table. Rows keep their file
// order; activity titles are kept verbatim (filtering against the skill
// catalogue happens during aggregation, not here). Subject IDs stay in the
// pseudonymous namespace until the identity reconciler remaps them.
func (r *RawAnalyticsReader) Read(src io.Reader) (*attempt.Table, *RawAnalyticsReport, error) {
	report := &RawAnalyticsReport{}

	reader := csv.NewReader(src)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, report, fmt.Errorf("ingest: read raw_analytics header: %w", err)
	}

	idx, err := columnIndices(header)
	if err != nil {
		return nil, report, err
	}

	table := attempt.EmptyTable()
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, report, fmt.Errorf("ingest: read raw_analytics line %d: %w", line, err)
		}

		record, err := r.parseRow(row, idx)
		if err != nil {
			report.SkippedRows++
			report.RowErrors = append(report.RowErrors, fmt.Errorf("line %d: %w", line, err))
			r.log.Info("skipping unparseable raw_analytics row",
				logger.Int("line", line), logger.Err(err))
			continue
		}
		table.Append(record)
	}
	return table, report, nil
}

func (r *RawAnalyticsReader) parseRow(row []string, idx map[string]int) (attempt.Record, error) {
	get := func(col string) (string, error) {
		i := idx[col]
		if i >= len(row) {
			return "", fmt.Errorf("missing column %q", col)
		}
		return strings.TrimSpace(row[i]), nil
	}

	subjectID, err := get(colStudentID)
	if err != nil {
		return attempt.Record{}, err
	}
	dateStr, err := get(colDateCreated)
	if err != nil {
		return attempt.Record{}, err
	}
	title, err := get(colActivityTitle)
	if err != nil {
		return attempt.Record{}, err
	}
	attemptStr, err := get(colAttemptNumber)
	if err != nil {
		return attempt.Record{}, err
	}
	correctStr, err := get(colCorrect)
	if err != nil {
		return attempt.Record{}, err
	}

	ts, err := timeutil.ParseRawAnalytics(dateStr)
	if err != nil {
		return attempt.Record{}, err
	}
	number, err := strconv.Atoi(attemptStr)
	if err != nil {
		return attempt.Record{}, fmt.Errorf("attempt number %q: %w", attemptStr, err)
	}
	correct, err := strconv.ParseBool(strings.ToLower(correctStr))
	if err != nil {
		return attempt.Record{}, fmt.Errorf("correct flag %q: %w", correctStr, err)
	}
	// Student IDs here are pseudonyms from the raw-log namespace.
	if !shared.Pseudonym(subjectID).IsValid() {
		return attempt.Record{}, attempt.ErrInvalidSubjectID
	}
	if number < 1 {
		return attempt.Record{}, attempt.ErrInvalidAttemptNum
	}

	// Titles are kept verbatim even when they do not encode a (skill,
	// session) pair; aggregation only ever selects canonical names, so
	// practice activities fall away there.
	return attempt.Record{
		SubjectID: subjectID,
		Activity:  attempt.ActivityName(title),
		Timestamp: ts,
		Number:    number,
		Correct:   correct,
	}, nil
}

func columnIndices(header []string) (map[string]int, error) {
	wanted := []string{colStudentID, colDateCreated, colActivityTitle, colAttemptNumber, colCorrect}
	idx := make(map[string]int, len(wanted))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range wanted {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("ingest: raw_analytics header lacks column %q", col)
		}
	}
	return idx, nil
}
