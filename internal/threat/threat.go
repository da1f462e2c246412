// Package threat defines the immutable threat record input model and dataset loading.
package threat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record is one threat report as loaded from the dataset. Records are
// immutable inputs to triage; only approval state is ever mutated.
type Record struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Severity      *float64 `json:"severity,omitempty"`
	Date          string   `json:"date,omitempty"`
	SourceTrust   string   `json:"source_trust,omitempty"`
	AssetCategory string   `json:"asset_category,omitempty"`
}

// FullText combines title and description for keyword analysis.
func (r *Record) FullText() string {
	return strings.TrimSpace(r.Title + " " + r.Description)
}

// SeverityScore returns the severity score, or 0 when none was reported.
func (r *Record) SeverityScore() float64 {
	if r.Severity == nil {
		return 0
	}
	return *r.Severity
}

// LoadDataset reads an ordered threat dataset from a JSON file. A record
// without an ID, or a duplicate ID, fails the load; triage must be able to
// key approval state by threat identifier.
func LoadDataset(path string) ([]Record, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is operator config, not user input
	if err != nil {
		return nil, fmt.Errorf("read threat dataset: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse threat dataset %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(records))
	for i := range records {
		id := records[i].ID
		if id == "" {
			return nil, fmt.Errorf("threat dataset %s: record %d has no id", path, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("threat dataset %s: duplicate threat id %q", path, id)
		}
		seen[id] = struct{}{}
	}

	return records, nil
}
