// Package output provides writers for the per-protein tables amfold
// persists next to the annotated structures.
package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/inodb/amfold/internal/datasource/alphamissense"
)

// RecordColumns is the header of the parsed variant table.
var RecordColumns = []string{
	"reference_aa",
	"residue_number",
	"alternative_aa",
	"pathogenicity_score",
}

// RecordWriter writes parsed variant records as CSV. Absent fields are
// written as empty strings.
type RecordWriter struct {
	w *csv.Writer
}

// NewRecordWriter creates a CSV writer for variant records.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the header line.
func (rw *RecordWriter) WriteHeader() error {
	return rw.w.Write(RecordColumns)
}

// Write writes a single record.
func (rw *RecordWriter) Write(r alphamissense.Record) error {
	row := make([]string, 4)
	if r.Ref != 0 {
		row[0] = string(r.Ref)
	}
	if r.HasResidue {
		row[1] = strconv.Itoa(r.Residue)
	}
	if r.Alt != 0 {
		row[2] = string(r.Alt)
	}
	if r.HasScore {
		row[3] = strconv.FormatFloat(r.Score, 'f', -1, 64)
	}
	return rw.w.Write(row)
}

// Flush flushes any buffered data to the underlying writer.
func (rw *RecordWriter) Flush() error {
	rw.w.Flush()
	return rw.w.Error()
}

// WriteRecords writes the header and all records of t.
func WriteRecords(w io.Writer, t *alphamissense.Table) error {
	rw := NewRecordWriter(w)
	if err := rw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range t.Records {
		if err := rw.Write(r); err != nil {
			return err
		}
	}
	return rw.Flush()
}
