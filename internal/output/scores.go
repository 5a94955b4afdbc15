package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Scores is the per-residue lookup written by ScoreWriter.
type Scores interface {
	Residues() []int
	At(residue int) (float64, bool)
}

// ScoreWriter writes per-residue average scores in tab-delimited format.
type ScoreWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewScoreWriter creates a new tab-delimited score writer.
func NewScoreWriter(w io.Writer) *ScoreWriter {
	return &ScoreWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"residue_number",
			"mean_pathogenicity",
		},
	}
}

// WriteHeader writes the header line.
func (sw *ScoreWriter) WriteHeader() error {
	_, err := sw.w.WriteString(strings.Join(sw.columns, "\t") + "\n")
	return err
}

// Write writes one line per residue that has a score, ascending.
func (sw *ScoreWriter) Write(s Scores) error {
	for _, res := range s.Residues() {
		score, ok := s.At(res)
		if !ok {
			continue
		}
		line := strconv.Itoa(res) + "\t" + strconv.FormatFloat(score, 'f', 4, 64) + "\n"
		if _, err := sw.w.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (sw *ScoreWriter) Flush() error {
	return sw.w.Flush()
}
