package attempt

import (
	"sort"
	"time"
)

// Table is the flat, ordered collection of attempt records produced by
// parsing one or more event logs. Ordering is deterministic: parsing the same
// input twice yields byte-for-byte identical tables.
type Table struct {
	records []Record
}

// NewTable creates a table from a slice of records. The slice is copied.
func NewTable(records []Record) *Table {
	t := &Table{records: make([]Record, len(records))}
	copy(t.records, records)
	return t
}

// EmptyTable creates an empty table.
func EmptyTable() *Table {
	return &Table{}
}

// Append adds a record to the end of the table, preserving arrival order.
func (t *Table) Append(r Record) {
	t.records = append(t.records, r)
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Records returns the records in table order. The caller must not mutate
// the returned slice.
func (t *Table) Records() []Record {
	return t.records
}

// SubjectIDs returns the distinct subject IDs in first-appearance order.
func (t *Table) SubjectIDs() []string {
	seen := make(map[string]bool, len(t.records))
	var ids []string
	for _, r := range t.records {
		if !seen[r.SubjectID] {
			seen[r.SubjectID] = true
			ids = append(ids, r.SubjectID)
		}
	}
	return ids
}

// Activities returns the set of distinct activity names in the table.
func (t *Table) Activities() map[ActivityName]bool {
	set := make(map[ActivityName]bool, len(t.records))
	for _, r := range t.records {
		set[r.Activity] = true
	}
	return set
}

// ForSubject returns the records belonging to one subject, in table order.
func (t *Table) ForSubject(subjectID string) []Record {
	var out []Record
	for _, r := range t.records {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out
}

// ForSubjectActivity returns the records for one (subject, activity) pair,
// in table order.
func (t *Table) ForSubjectActivity(subjectID string, activity ActivityName) []Record {
	var out []Record
	for _, r := range t.records {
		if r.SubjectID == subjectID && r.Activity == activity {
			out = append(out, r)
		}
	}
	return out
}

// TimestampsBySubject returns, for each subject ID, all attempt timestamps in
// table order. Used by the identity reconciler's proximity voting.
func (t *Table) TimestampsBySubject() map[string][]time.Time {
	out := make(map[string][]time.Time)
	for _, r := range t.records {
		out[r.SubjectID] = append(out[r.SubjectID], r.Timestamp)
	}
	return out
}

// RemapSubjects returns a new table containing only records whose subject ID
// has an entry in the mapping, with IDs translated. Record order is preserved.
// Records without a mapping entry are dropped, mirroring how unmatched
// pseudonyms are excluded from the unified results.
func (t *Table) RemapSubjects(mapping map[string]string) *Table {
	out := EmptyTable()
	for _, r := range t.records {
		canonical, ok := mapping[r.SubjectID]
		if !ok {
			continue
		}
		remapped := r
		remapped.SubjectID = canonical
		out.Append(remapped)
	}
	return out
}

// Merge returns a new table with the records of both tables, this table's
// records first. Input tables are unchanged.
func (t *Table) Merge(other *Table) *Table {
	out := &Table{records: make([]Record, 0, len(t.records)+len(other.records))}
	out.records = append(out.records, t.records...)
	out.records = append(out.records, other.records...)
	return out
}

// DeriveAttemptNumbers returns a new table where each record's attempt number
// is the ordinal position of its timestamp within the sorted set of distinct
// timestamps for that (subject, activity) pair. Records arriving as a burst
// at one timestamp all share that ordinal. Ties in input order are preserved
// because ordering within the table never changes.
//
// Datashop logs carry no explicit attempt numbers, so they are reconstructed
// here; raw_analytics tables already carry them and skip this step.
func (t *Table) DeriveAttemptNumbers() *Table {
	type key struct {
		subject  string
		activity ActivityName
	}

	distinct := make(map[key][]time.Time)
	seen := make(map[key]map[time.Time]bool)
	for _, r := range t.records {
		k := key{r.SubjectID, r.Activity}
		if seen[k] == nil {
			seen[k] = make(map[time.Time]bool)
		}
		if !seen[k][r.Timestamp] {
			seen[k][r.Timestamp] = true
			distinct[k] = append(distinct[k], r.Timestamp)
		}
	}

	ordinal := make(map[key]map[time.Time]int, len(distinct))
	for k, times := range distinct {
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		ordinal[k] = make(map[time.Time]int, len(times))
		for i, ts := range times {
			ordinal[k][ts] = i + 1
		}
	}

	out := &Table{records: make([]Record, len(t.records))}
	for i, r := range t.records {
		r.Number = ordinal[key{r.SubjectID, r.Activity}][r.Timestamp]
		out.records[i] = r
	}
	return out
}
