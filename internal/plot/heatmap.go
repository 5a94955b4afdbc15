// Package plot renders AlphaMissense scores as PNG figures.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/inodb/amfold/internal/datasource/alphamissense"
)

// ErrNothingToPlot is returned when the input holds no plottable values.
var ErrNothingToPlot = errors.New("nothing to plot")

// AminoAcids is the row order of the heatmap.
const AminoAcids = "ACDEFGHIKLMNPQRSTVWY"

// substitutionGrid is a plotter.GridXYZ of alternate amino acid (rows) by
// residue number (columns). Column 0 is residue 0 and never holds data.
type substitutionGrid struct {
	cells [][]float64 // [residue][amino acid]
}

func newSubstitutionGrid(records []alphamissense.Record) (*substitutionGrid, bool) {
	maxRes := 0
	for _, r := range records {
		if !inGrid(r) {
			continue
		}
		if r.Residue > maxRes {
			maxRes = r.Residue
		}
	}
	if maxRes == 0 {
		return nil, false
	}

	g := &substitutionGrid{cells: make([][]float64, maxRes+1)}
	for i := range g.cells {
		row := make([]float64, len(AminoAcids))
		for j := range row {
			row[j] = nan
		}
		g.cells[i] = row
	}
	for _, r := range records {
		if !inGrid(r) {
			continue
		}
		aa := strings.IndexByte(AminoAcids, r.Alt)
		g.cells[r.Residue][aa] = clamp01(r.Score)
	}
	return g, true
}

func inGrid(r alphamissense.Record) bool {
	return r.Valid() && r.Residue >= 1 && r.Residue <= alphamissense.MaxResidue &&
		strings.IndexByte(AminoAcids, r.Alt) >= 0
}

func (g *substitutionGrid) Dims() (c, r int)   { return len(g.cells), len(AminoAcids) }
func (g *substitutionGrid) Z(c, r int) float64 { return g.cells[c][r] }
func (g *substitutionGrid) X(c int) float64    { return float64(c) }
func (g *substitutionGrid) Y(r int) float64    { return float64(r) }

// Heatmap renders the substitution scores of one protein to path.
func Heatmap(records []alphamissense.Record, accession, path string) error {
	grid, ok := newSubstitutionGrid(records)
	if !ok {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("AlphaMissense pathogenicity %s", accession)
	p.X.Label.Text = "Residue number"
	p.Y.Label.Text = "Alternate amino acid"

	hm := plotter.NewHeatMap(grid, palette.Heat(12, 1))
	hm.Min = 0
	hm.Max = 1
	hm.NaN = color.Transparent
	p.Add(hm)

	ticks := make([]plot.Tick, len(AminoAcids))
	for i := range AminoAcids {
		ticks[i] = plot.Tick{Value: float64(i), Label: AminoAcids[i : i+1]}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)

	c, _ := grid.Dims()
	width := vg.Length(c) * vg.Points(2)
	if width < 8*vg.Inch {
		width = 8 * vg.Inch
	}
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
