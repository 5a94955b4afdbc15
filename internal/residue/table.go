// Package residue reduces per-variant pathogenicity scores to one average
// score per residue position.
package residue

import (
	"errors"
	"math"

	"github.com/inodb/amfold/internal/datasource/alphamissense"
)

// ErrNoData is returned when there are no valid records to aggregate.
var ErrNoData = errors.New("no residue scores available")

// Table is a dense score table indexed by residue number, 0..MaxResidue
// inclusive. Slots without data hold NaN; slot 0 never holds data since
// residue numbering starts at 1.
type Table struct {
	scores []float64
}

// Aggregate groups valid records by residue number and stores the mean
// score of each group rounded to 4 decimals. Invalid records are ignored.
func Aggregate(records []alphamissense.Record) (*Table, error) {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[int]*acc)
	maxResidue := -1
	for _, r := range records {
		if !r.Valid() || r.Residue < 1 || r.Residue > alphamissense.MaxResidue {
			continue
		}
		g, ok := groups[r.Residue]
		if !ok {
			g = &acc{}
			groups[r.Residue] = g
		}
		g.sum += r.Score
		g.n++
		if r.Residue > maxResidue {
			maxResidue = r.Residue
		}
	}
	if len(groups) == 0 {
		return nil, ErrNoData
	}

	scores := make([]float64, maxResidue+1)
	for i := range scores {
		scores[i] = math.NaN()
	}
	for pos, g := range groups {
		scores[pos] = Round4(g.sum / float64(g.n))
	}
	return &Table{scores: scores}, nil
}

// NewTable builds a Table from raw slot values; NaN marks "no data".
// Slot 0 is forced to NaN.
func NewTable(scores []float64) *Table {
	s := make([]float64, len(scores))
	copy(s, scores)
	if len(s) > 0 {
		s[0] = math.NaN()
	}
	return &Table{scores: s}
}

// Round4 rounds x to 4 decimal places, half away from zero.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// Len returns the number of slots, MaxResidue()+1.
func (t *Table) Len() int {
	return len(t.scores)
}

// MaxResidue returns the highest residue index covered by the table.
func (t *Table) MaxResidue() int {
	return len(t.scores) - 1
}

// At returns the score at residue i. ok is false when i is out of range or
// the slot holds no data.
func (t *Table) At(i int) (score float64, ok bool) {
	if i < 0 || i >= len(t.scores) {
		return 0, false
	}
	s := t.scores[i]
	if math.IsNaN(s) {
		return 0, false
	}
	return s, true
}

// Scores returns a copy of all slots.
func (t *Table) Scores() []float64 {
	out := make([]float64, len(t.scores))
	copy(out, t.scores)
	return out
}

// Residues returns the residue numbers that hold data, ascending.
func (t *Table) Residues() []int {
	var out []int
	for i, s := range t.scores {
		if !math.IsNaN(s) {
			out = append(out, i)
		}
	}
	return out
}
