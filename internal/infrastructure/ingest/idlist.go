package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadParticipantIDs reads a participant ID list, one ID per line, and
// case-folds each entry. Blank lines are skipped. The file is assumed to
// have been written by the account provisioning command (or an earlier
// ExportIDs run).
func ReadParticipantIDs(src io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		id := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read participant IDs: %w", err)
	}
	return ids, nil
}
