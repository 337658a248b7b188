package provider

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFixedListCSV reads a two-or-more column CSV of code, display and
// optional definition into a FixedList provider. A header row is detected
// by a first cell named "code" (any case). This backs the tabular
// authorities distributed as flat files: RxNorm subsets, NDC, UNII, CPT
// and OMOP extracts.
func LoadFixedListCSV(system, version, path string, caseSensitive bool) (*FixedList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open code table: %w", err)
	}
	defer f.Close()
	return ReadFixedListCSV(system, version, f, caseSensitive)
}

// ReadFixedListCSV parses a code table from r.
func ReadFixedListCSV(system, version string, r io.Reader, caseSensitive bool) (*FixedList, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var entries []FixedConcept
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read code table for %s: %w", system, err)
		}
		if len(record) == 0 || record[0] == "" {
			continue
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(record[0]), "code") {
				continue
			}
		}
		entry := FixedConcept{Code: record[0]}
		if len(record) > 1 {
			entry.Display = record[1]
		}
		if len(record) > 2 {
			entry.Definition = record[2]
		}
		if len(record) > 3 {
			entry.Inactive = record[3] == "inactive" || record[3] == "true"
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("code table for %s is empty", system)
	}
	return NewFixedList(system, version, caseSensitive, entries), nil
}
