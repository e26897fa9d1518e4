// Package export writes the pipeline's output artifacts: per-participant
// JSON result files for the factorial experiment analysis, participant ID
// lists, the unified attempt table as CSV, and the completion report
// delivered to Statistiska Centralbyrån (SCB).
//
// All writers take io.Writer so callers decide where the bytes go; the
// per-participant writer takes an open callback since it produces one file
// per participant.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/demodigi-hub/results-hub/internal/domain/participant"
)

// ParticipantResults is the JSON document consumed by the factorial
// experiment analysis. Field names are part of the file format shared with
// the analysis side; do not rename.
type ParticipantResults struct {
	ID       string   `json:"ID"`
	Sessions int      `json:"Number of sessions"`
	Skills   int      `json:"Number of skills tested"`
	Results  [][]bool `json:"Results"`
}

// MarshalParticipant packs one participant's first-try results.
func MarshalParticipant(p *participant.Participant) ([]byte, error) {
	doc := ParticipantResults{
		ID:       p.ID,
		Sessions: p.NSessions(),
		Skills:   p.NSkills(),
		Results:  p.ResultsMatrix(),
	}
	return json.Marshal(doc)
}

// WriteParticipantResults writes one JSON file per participant. The open
// callback receives the participant ID and returns the destination writer;
// a typical implementation opens <dir>/<id>.json.
func WriteParticipantResults(roster *participant.Roster, open func(id string) (io.WriteCloser, error)) error {
	for _, p := range roster.All() {
		data, err := MarshalParticipant(p)
		if err != nil {
			return fmt.Errorf("marshal results for %s: %w", p.ID, err)
		}

		w, err := open(p.ID)
		if err != nil {
			return fmt.Errorf("open results file for %s: %w", p.ID, err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return fmt.Errorf("write results for %s: %w", p.ID, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close results file for %s: %w", p.ID, err)
		}
	}
	return nil
}

// idList is the JSON document holding a participant ID list. Readable both
// by this module's ingest side and by the factorial experiment analysis.
type idList struct {
	IDs []string `json:"IDs"`
}

// WriteIDs writes the participant ID list as JSON.
func WriteIDs(w io.Writer, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(idList{IDs: ids})
	if err != nil {
		return fmt.Errorf("marshal ID list: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write ID list: %w", err)
	}
	return nil
}
