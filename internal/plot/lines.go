package plot

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/inodb/amfold/internal/pdb"
)

var nan = math.NaN()

var (
	pathogenicityColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	plddtColor         = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
)

// ConfidenceBand is a pLDDT confidence class on the rescaled 0-1 axis.
type ConfidenceBand struct {
	Label    string
	Min, Max float64
	Color    color.NRGBA
}

// ConfidenceBands are the AlphaFold DB pLDDT classes, drawn behind the
// score lines.
var ConfidenceBands = []ConfidenceBand{
	{"Very low (<50)", 0, 0.5, color.NRGBA{R: 0xff, G: 0x7d, B: 0x45, A: 0xff}},
	{"Low (50-70)", 0.5, 0.7, color.NRGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}},
	{"Confident (70-90)", 0.7, 0.9, color.NRGBA{R: 0x65, G: 0xcb, B: 0xf3, A: 0xff}},
	{"Very high (>90)", 0.9, 1, color.NRGBA{R: 0x00, G: 0x00, B: 0xff, A: 0xff}},
}

// bandAlpha keeps the bands faint enough for the lines to stay readable.
const bandAlpha = 0x40

// BandOf returns the confidence band of a pLDDT value on the 0-100 scale.
func BandOf(plddt float64) ConfidenceBand {
	v := plddt / 100
	for _, b := range ConfidenceBands[:len(ConfidenceBands)-1] {
		if v < b.Max {
			return b
		}
	}
	return ConfidenceBands[len(ConfidenceBands)-1]
}

// ScoreLines renders averaged pathogenicity next to pLDDT (rescaled to 0-1)
// per atom. Each sequence is drawn against its own 1-based index.
func ScoreLines(series pdb.Series, accession, path string) error {
	if len(series.Pathogenicity) == 0 && len(series.PLDDT) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("pLDDT and AlphaMissense score %s", accession)
	p.X.Label.Text = "Atom"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	n := len(series.Pathogenicity)
	if len(series.PLDDT) > n {
		n = len(series.PLDDT)
	}
	if len(series.PLDDT) > 0 {
		if err := addBands(p, n); err != nil {
			return err
		}
	}

	if len(series.Pathogenicity) > 0 {
		if err := addLine(p, "AM score", series.Pathogenicity, 1, pathogenicityColor); err != nil {
			return err
		}
	}
	if len(series.PLDDT) > 0 {
		if err := addLine(p, "pLDDT / 100", series.PLDDT, 100, plddtColor); err != nil {
			return err
		}
	}

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save score plot: %w", err)
	}
	return nil
}

// addBands shades each confidence band across atoms 1..n.
func addBands(p *plot.Plot, n int) error {
	xMax := float64(n)
	if xMax < 2 {
		xMax = 2
	}
	for _, b := range ConfidenceBands {
		poly, err := plotter.NewPolygon(plotter.XYs{
			{X: 1, Y: b.Min}, {X: xMax, Y: b.Min}, {X: xMax, Y: b.Max}, {X: 1, Y: b.Max},
		})
		if err != nil {
			return fmt.Errorf("%s band: %w", b.Label, err)
		}
		fill := b.Color
		fill.A = bandAlpha
		poly.Color = fill
		poly.LineStyle.Width = 0
		p.Add(poly)
		p.Legend.Add("pLDDT "+b.Label, poly)
	}
	return nil
}

func addLine(p *plot.Plot, name string, values []float64, scale float64, c color.Color) error {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i + 1)
		pts[i].Y = v / scale
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", name, err)
	}
	line.Color = c
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
