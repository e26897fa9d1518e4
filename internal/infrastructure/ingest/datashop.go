// Package ingest implements readers for the two OLI-Torus event-log formats:
// the Datashop XML tutoring-interaction log and the raw_analytics TSV export.
// Both produce the flat attempt table consumed by the outcome aggregator.
package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
	"github.com/demodigi-hub/results-hub/pkg/logger"
	"github.com/demodigi-hub/results-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATASHOP XML READER
// The log follows the Datashop tutor_message DTD: for each problem there is a
// context_message followed by one or more tool_message/tutor_message pairs.
// Messages within a batch are ordered in time, but batches need not be
// ordered with respect to each other.
// ══════════════════════════════════════════════════════════════════════════════

// contextMessage mirrors the subset of a context_message element we need.
type contextMessage struct {
	Meta struct {
		UserID string `xml:"user_id"`
		Time   string `xml:"time"`
	} `xml:"meta"`
	Dataset struct {
		Level struct {
			Level struct {
				Problem struct {
					Name string `xml:"name"`
				} `xml:"problem"`
			} `xml:"level"`
		} `xml:"level"`
	} `xml:"dataset"`
}

// tutorMessage mirrors the subset of a tutor_message element we need.
type tutorMessage struct {
	ActionEvaluation string `xml:"action_evaluation"`
}

// activeContext is the parsing context carried across the fold: the subject,
// problem and instant announced by the most recent well-formed
// context_message. A nil active context means tutor messages are discarded
// until the next well-formed one.
type activeContext struct {
	subjectID string
	activity  attempt.ActivityName
	matched   bool
	timestamp time.Time
}

// DatashopReport collects the non-fatal issues of one parse run.
type DatashopReport struct {
	// MalformedContexts counts context elements lacking the expected
	// nested problem path.
	MalformedContexts int

	// DiscardedTutors counts tutor messages dropped because no valid
	// context was active.
	DiscardedTutors int

	// UnmatchedProblems counts tutor messages under problems that match no
	// configured (skill, session) pair, e.g. practice activities.
	UnmatchedProblems int

	// OutcomeErrors lists per-record outcome parse failures. Each is fatal
	// to its record only; the run continues.
	OutcomeErrors []error
}

// DatashopReader parses Datashop XML logs into attempt tables.
type DatashopReader struct {
	resolver *skillmap.Resolver
	log      *logger.Logger
}

// NewDatashopReader creates a reader. The resolver must already know the
// session count: activity matching needs the full skill × session grid.
func NewDatashopReader(resolver *skillmap.Resolver, log *logger.Logger) *DatashopReader {
	if log == nil {
		log = logger.Nop()
	}
	return &DatashopReader{resolver: resolver, log: log}
}

// Read parses the XML stream into a flat attempt table with derived attempt
// numbers. Parsing is an explicit fold: the active context threads alongside
// the growing attempt list, so there is no hidden mutable state and slices of
// input parse independently.
//
// Record ordering is fixed: subjects in first-appearance order, then problems
// in first-appearance order per subject, then distinct timestamps ascending,
// then arrival order within a timestamp burst. Re-reading the same input
// yields a byte-for-byte identical table.
func (r *DatashopReader) Read(src io.Reader) (*attempt.Table, *DatashopReport, error) {
	report := &DatashopReport{}
	collector := newOrderedCollector()

	decoder := xml.NewDecoder(src)
	var active *activeContext

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("ingest: decode datashop xml: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "context_message":
			var msg contextMessage
			if err := decoder.DecodeElement(&msg, &start); err != nil {
				return nil, report, fmt.Errorf("ingest: decode context_message: %w", err)
			}
			active, err = r.foldContext(msg, report)
			if err != nil {
				return nil, report, fmt.Errorf("ingest: datashop read: %w", err)
			}

		case "tool_message":
			// Raw interaction only; carries no outcome.
			if err := decoder.Skip(); err != nil {
				return nil, report, fmt.Errorf("ingest: skip tool_message: %w", err)
			}

		case "tutor_message":
			var msg tutorMessage
			if err := decoder.DecodeElement(&msg, &start); err != nil {
				return nil, report, fmt.Errorf("ingest: decode tutor_message: %w", err)
			}
			r.foldTutor(msg, active, collector, report)
		}
	}

	return collector.table().DeriveAttemptNumbers(), report, nil
}

// foldContext turns a context_message into the next active context. A
// malformed problem path or label yields nil: everything until the next
// well-formed context is discarded. This specifically drops practice and
// orientation activities that do not follow the problem naming shape.
//
// An unknown session count is different: matching is impossible for every
// context, so the run is misconfigured and the error aborts the parse
// instead of draining into the malformed-context counter.
func (r *DatashopReader) foldContext(msg contextMessage, report *DatashopReport) (*activeContext, error) {
	label := msg.Dataset.Level.Level.Problem.Name
	if label == "" {
		report.MalformedContexts++
		r.log.Info("skipping context without problem path", logger.Pseudonym(msg.Meta.UserID))
		return nil, nil
	}

	problemName, err := attempt.ProblemNameFromLabel(label)
	if err != nil {
		report.MalformedContexts++
		r.log.Info("skipping context with malformed problem label",
			logger.Pseudonym(msg.Meta.UserID), logger.String("label", label))
		return nil, nil
	}

	ts, err := timeutil.ParseDatashop(msg.Meta.Time)
	if err != nil {
		report.MalformedContexts++
		r.log.Info("skipping context with unparseable time",
			logger.Pseudonym(msg.Meta.UserID), logger.String("time", msg.Meta.Time))
		return nil, nil
	}

	canonical, matched, err := r.resolver.MatchProblemName(problemName)
	if err != nil {
		return nil, err
	}

	return &activeContext{
		subjectID: msg.Meta.UserID,
		activity:  canonical,
		matched:   matched,
		timestamp: ts,
	}, nil
}

// foldTutor appends one attempt outcome under the active context.
func (r *DatashopReader) foldTutor(msg tutorMessage, active *activeContext, c *orderedCollector, report *DatashopReport) {
	if active == nil {
		report.DiscardedTutors++
		return
	}
	if !active.matched {
		report.UnmatchedProblems++
		return
	}

	outcome, err := attempt.ParseOutcome(msg.ActionEvaluation)
	if err != nil {
		report.OutcomeErrors = append(report.OutcomeErrors,
			fmt.Errorf("subject %s activity %s at %s: %w",
				active.subjectID, active.activity, active.timestamp.Format(time.RFC3339), err))
		r.log.Warn("unrecognized action evaluation",
			logger.Pseudonym(active.subjectID),
			logger.Activity(active.activity.String()),
			logger.String("value", msg.ActionEvaluation))
		return
	}

	c.add(active.subjectID, active.activity, active.timestamp, outcome.Bool())
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERED COLLECTOR
// ══════════════════════════════════════════════════════════════════════════════

type burstKey struct {
	subject  string
	activity attempt.ActivityName
}

// orderedCollector accumulates outcomes grouped by (subject, activity,
// timestamp) while remembering first-appearance order, then emits them in the
// fixed table order.
type orderedCollector struct {
	subjectOrder  []string
	activityOrder map[string][]attempt.ActivityName
	outcomes      map[burstKey]map[time.Time][]bool
}

func newOrderedCollector() *orderedCollector {
	return &orderedCollector{
		activityOrder: make(map[string][]attempt.ActivityName),
		outcomes:      make(map[burstKey]map[time.Time][]bool),
	}
}

func (c *orderedCollector) add(subject string, activity attempt.ActivityName, ts time.Time, correct bool) {
	k := burstKey{subject, activity}
	if c.outcomes[k] == nil {
		c.outcomes[k] = make(map[time.Time][]bool)
		if len(c.activityOrder[subject]) == 0 {
			c.subjectOrder = append(c.subjectOrder, subject)
		}
		c.activityOrder[subject] = append(c.activityOrder[subject], activity)
	}
	c.outcomes[k][ts] = append(c.outcomes[k][ts], correct)
}

func (c *orderedCollector) table() *attempt.Table {
	t := attempt.EmptyTable()
	for _, subject := range c.subjectOrder {
		for _, activity := range c.activityOrder[subject] {
			bursts := c.outcomes[burstKey{subject, activity}]

			times := make([]time.Time, 0, len(bursts))
			for ts := range bursts {
				times = append(times, ts)
			}
			sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

			for _, ts := range times {
				for _, correct := range bursts[ts] {
					t.Append(attempt.Record{
						SubjectID: subject,
						Activity:  activity,
						Timestamp: ts,
						Number:    1, // rewritten by DeriveAttemptNumbers
						Correct:   correct,
					})
				}
			}
		}
	}
	return t
}
