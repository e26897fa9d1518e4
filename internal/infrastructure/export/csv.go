package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/pkg/timeutil"
)

// SCB sentinel values. These exact Swedish strings are expected by the
// receiving side; do not translate or reword.
const (
	// SCBUnknownPersonNumber stands in for the person number, which this
	// system deliberately never learns.
	SCBUnknownPersonNumber = "Ej känt"

	// SCBEstimatedTime is the fixed estimated module duration.
	SCBEstimatedTime = "30 min"

	// SCBNotFinished marks a participant without a completion date.
	SCBNotFinished = "Ej klar"
)

// layoutDate is the date-only layout used in the SCB report.
const layoutDate = "2006-01-02"

// WriteFullResults writes the unified attempt table as CSV, one row per
// attempt in table order.
func WriteFullResults(w io.Writer, table *attempt.Table) error {
	cw := csv.NewWriter(w)

	header := []string{"Student ID", "Date Created", "Activity Title", "Attempt Number", "Correct?"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range table.Records() {
		row := []string{
			rec.SubjectID,
			rec.Timestamp.Format(timeutil.LayoutDatashop),
			string(rec.Activity),
			strconv.Itoa(rec.Number),
			formatBool(rec.Correct),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSCBReport writes the completion report for Statistiska Centralbyrån.
// One row per registered participant, sorted by ID. The person number
// column is always the unknown sentinel: participants are pseudonymized
// before their results ever reach this system.
func WriteSCBReport(w io.Writer, roster *participant.Roster) error {
	cw := csv.NewWriter(w)

	header := []string{"Personnummer", "Uppskattad tid", "Startdatum", "Avslutsdatum"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, p := range roster.All() {
		start := SCBUnknownPersonNumber
		if p.FirstAnswerDate != nil {
			start = p.FirstAnswerDate.Format(layoutDate)
		}

		end := SCBNotFinished
		if p.Finished() && p.LastAnswerDate != nil {
			end = p.LastAnswerDate.Format(layoutDate)
		}

		row := []string{SCBUnknownPersonNumber, SCBEstimatedTime, start, end}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row for %s: %w", p.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSeries writes a cumulative answer series as CSV. Used for the
// progress plots in status reports.
func WriteSeries(w io.Writer, series []participant.SeriesPoint) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Date", "Cumulative answers"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, pt := range series {
		row := []string{pt.Date.Format(timeutil.LayoutDatashop), strconv.Itoa(pt.Count)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatBool matches the True/False spelling of the source logs so a
// written table can be re-read by the raw-analytics ingester.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
