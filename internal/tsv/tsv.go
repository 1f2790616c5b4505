// Package tsv implements the tab-separated file reading and writing shared
// by the map loader (pkg/rommap) and the dump/build pipeline (pkg/rom).
//
// No third-party TSV/CSV library appears anywhere in the retrieval pack, so
// this wraps the standard library's encoding/csv with Comma set to '\t' —
// the only place in this module where stdlib is used without an ecosystem
// alternative on hand (see DESIGN.md).
package tsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Row is one record, indexed by column header.
type Row map[string]string

// ReadFile parses path as a tab-separated file with a header row and
// returns one Row per subsequent line. Missing files return (nil, nil): per
// SPEC_FULL.md §6, missing optional map files are treated as empty.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read parses r as a tab-separated stream with a header row.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tsv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// KVFile reads a two-column "key\tvalue" file with no header, as used by
// rom.tsv's top-level metadata (SPEC_FULL.md §6).
func KVFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tsv: %w", err)
	}
	out := make(map[string]string, len(records))
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		out[rec[0]] = rec[1]
	}
	return out, nil
}

// Writer writes rows in a stable column order, Unix line endings, per
// SPEC_FULL.md §6's "dump directory" wire format.
type Writer struct {
	w       io.Writer
	columns []string
}

// NewWriter creates a Writer that emits columns in the given order.
func NewWriter(w io.Writer, columns []string) *Writer {
	return &Writer{w: w, columns: columns}
}

// WriteHeader writes the column header row.
func (w *Writer) WriteHeader() error {
	return w.writeRecord(w.columns)
}

// WriteRow writes one row, looking up each column by name. Missing columns
// are written as empty fields.
func (w *Writer) WriteRow(row Row) error {
	rec := make([]string, len(w.columns))
	for i, col := range w.columns {
		rec[i] = row[col]
	}
	return w.writeRecord(rec)
}

func (w *Writer) writeRecord(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if _, err := io.WriteString(w.w, "\t"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w.w, f); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w.w, "\n")
	return err
}
