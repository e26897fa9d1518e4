// Package attempt contains domain entities for individual question attempts
// parsed out of the OLI-Torus event logs. Records are immutable once parsed.
// This is a pure domain layer with zero external dependencies.
package attempt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/demodigi-hub/results-hub/internal/domain/shared"
)

// Domain errors for attempt package. Each carries a base kind from shared so
// callers can classify with errors.Is or the shared predicates: label and
// name errors are malformed records (skipped, never fatal), an unknown
// outcome is fatal to its record only.
var (
	ErrInvalidSubjectID  = shared.NewDomainError("attempt", "Validate", shared.ErrInvalidID, "invalid subject ID")
	ErrInvalidActivity   = shared.NewDomainError("attempt", "Validate", shared.ErrInvalidFormat, "invalid activity name")
	ErrInvalidAttemptNum = shared.NewDomainError("attempt", "Validate", shared.ErrValueOutOfRange, "attempt number must be positive")
	ErrZeroTimestamp     = shared.NewDomainError("attempt", "Validate", shared.ErrEmptyValue, "timestamp is zero")
	ErrUnknownOutcome    = shared.NewDomainError("attempt", "Parse", shared.ErrUnrecognizedOutcome, "unrecognized action evaluation")
	ErrMalformedLabel    = shared.NewDomainError("attempt", "Parse", shared.ErrMalformedRecord, "problem label does not split into tokens")
	ErrNotAnActivityName = shared.NewDomainError("attempt", "Parse", shared.ErrMalformedRecord, "name does not match <skill>_Q<session>")
)

// Outcome is the evaluated result of a single attempt.
type Outcome bool

const (
	// OutcomeCorrect marks an attempt evaluated as CORRECT.
	OutcomeCorrect Outcome = true
	// OutcomeIncorrect marks an attempt evaluated as INCORRECT.
	OutcomeIncorrect Outcome = false
)

// ParseOutcome converts an action_evaluation value into an Outcome.
// Anything outside {CORRECT, INCORRECT} is a hard error for the record that
// carried it; the value is never coerced.
func ParseOutcome(value string) (Outcome, error) {
	switch value {
	case "CORRECT":
		return OutcomeCorrect, nil
	case "INCORRECT":
		return OutcomeIncorrect, nil
	default:
		return OutcomeIncorrect, fmt.Errorf("%w: %q", ErrUnknownOutcome, value)
	}
}

// Bool returns the outcome as a plain bool (true = correct).
func (o Outcome) Bool() bool {
	return bool(o)
}

// String returns the log-file spelling of the outcome.
func (o Outcome) String() string {
	if o {
		return "CORRECT"
	}
	return "INCORRECT"
}

// ActivityName is a composite string encoding skill and session,
// e.g. "Backup_Q2". The canonical (mixed-case) spelling comes from the
// skill catalogue; raw log values are matched case-insensitively.
type ActivityName string

// String returns the string representation.
func (a ActivityName) String() string {
	return string(a)
}

// IsValid checks that the name has the <skill>_Q<session> shape.
func (a ActivityName) IsValid() bool {
	_, _, err := a.Split()
	return err == nil
}

// Split decomposes the activity name into its skill and session parts.
func (a ActivityName) Split() (skill string, session int, err error) {
	idx := strings.LastIndex(string(a), "_Q")
	if idx <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrNotAnActivityName, string(a))
	}
	session, convErr := strconv.Atoi(string(a)[idx+2:])
	if convErr != nil || session < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrNotAnActivityName, string(a))
	}
	return string(a)[:idx], session, nil
}

// FormatActivityName builds the canonical activity name for a skill and
// 1-based session index.
func FormatActivityName(skill string, session int) ActivityName {
	return ActivityName(fmt.Sprintf("%s_Q%d", skill, session))
}

// ProblemNameFromLabel extracts the problem name from the composite label
// field of a Datashop context element. The fixed parse rule: split the label
// on the first whitespace, take the second token, drop its final character.
// Labels without a second token are malformed.
func ProblemNameFromLabel(label string) (string, error) {
	tokens := strings.Split(label, " ")
	if len(tokens) < 2 || len(tokens[1]) < 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	second := tokens[1]
	return second[:len(second)-1], nil
}

// Record is one attempt by one subject at one activity. Multiple records may
// share (SubjectID, Activity) differing by Number and Timestamp. Records are
// never mutated after parsing.
type Record struct {
	// SubjectID identifies the participant, in whichever namespace the
	// source log uses.
	SubjectID string

	// Activity is the canonical activity name, e.g. "Backup_Q2".
	Activity ActivityName

	// Timestamp is the attempt instant in UTC.
	Timestamp time.Time

	// Number is the 1-based attempt number. For raw_analytics input it is
	// carried in the log; for Datashop input it is derived from timestamp
	// ordinals (see Table.DeriveAttemptNumbers).
	Number int

	// Correct is the evaluated outcome.
	Correct bool
}

// NewRecord creates a validated attempt record.
func NewRecord(subjectID string, activity ActivityName, ts time.Time, number int, correct bool) (Record, error) {
	if strings.TrimSpace(subjectID) == "" {
		return Record{}, ErrInvalidSubjectID
	}
	if !activity.IsValid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidActivity, activity)
	}
	if ts.IsZero() {
		return Record{}, ErrZeroTimestamp
	}
	if number < 1 {
		return Record{}, ErrInvalidAttemptNum
	}
	return Record{
		SubjectID: subjectID,
		Activity:  activity,
		Timestamp: ts.UTC(),
		Number:    number,
		Correct:   correct,
	}, nil
}

// IsFirstTry reports whether this record is the subject's first attempt at
// the activity.
func (r Record) IsFirstTry() bool {
	return r.Number == 1
}

// String returns a compact representation for logging.
func (r Record) String() string {
	return fmt.Sprintf("Record{%s %s #%d %s %s}",
		r.SubjectID, r.Activity, r.Number, r.Timestamp.Format(time.RFC3339), Outcome(r.Correct))
}
