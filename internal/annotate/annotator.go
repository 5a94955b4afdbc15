// Package annotate drives the per-protein pipeline: fetch AFDB metadata,
// parse the AlphaMissense table, average scores per residue, write them into
// the predicted structure and render figures.
package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/amfold/internal/datasource/afdb"
	"github.com/inodb/amfold/internal/datasource/alphamissense"
	"github.com/inodb/amfold/internal/duckdb"
	"github.com/inodb/amfold/internal/output"
	"github.com/inodb/amfold/internal/pdb"
	"github.com/inodb/amfold/internal/residue"
)

// DefaultOutputDir is where artifacts are written unless configured.
const DefaultOutputDir = "data_output"

// ErrInvalidAccession is returned for accessions that cannot name an output
// file, such as ones containing path separators.
var ErrInvalidAccession = errors.New("invalid accession")

// Fetcher retrieves prediction metadata and remote resources.
type Fetcher interface {
	Predictions(ctx context.Context, accession string) ([]afdb.Prediction, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// ScoreStore persists per-residue averages.
type ScoreStore interface {
	WriteResidueScores(accession string, scores duckdb.Scores) error
}

// Renderer draws the per-protein figures.
type Renderer interface {
	Heatmap(records []alphamissense.Record, accession, path string) error
	ScoreLines(series pdb.Series, accession, path string) error
}

// Annotator runs the pipeline for one accession at a time.
type Annotator struct {
	fetcher   Fetcher
	outputDir string
	columns   alphamissense.Columns
	structure *pdb.Annotator
	store     ScoreStore
	renderer  Renderer
	logger    *zap.Logger
}

// NewAnnotator creates an annotator that retrieves resources through f.
func NewAnnotator(f Fetcher) *Annotator {
	return &Annotator{
		fetcher:   f,
		outputDir: DefaultOutputDir,
		columns:   alphamissense.DefaultColumns(),
		structure: pdb.NewAnnotator(),
		logger:    zap.NewNop(),
	}
}

// SetOutputDir sets the directory artifacts are written to.
func (a *Annotator) SetOutputDir(dir string) {
	a.outputDir = dir
}

// SetColumns sets the variant identifier and score column names.
func (a *Annotator) SetColumns(cols alphamissense.Columns) {
	a.columns = cols
}

// SetStrict configures whether B-factor overflow aborts structure annotation.
func (a *Annotator) SetStrict(strict bool) {
	a.structure.SetStrict(strict)
}

// SetStore enables persistence of residue averages. Nil disables it.
func (a *Annotator) SetStore(s ScoreStore) {
	a.store = s
}

// SetRenderer enables figure rendering. Nil disables it.
func (a *Annotator) SetRenderer(r Renderer) {
	a.renderer = r
}

// SetLogger sets the logger for warning and info messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
	a.structure.SetLogger(l)
}

// Process runs every step for one accession. Failures are logged and
// recorded in the result; they never panic or abort the caller.
func (a *Annotator) Process(ctx context.Context, accession string) *Result {
	res := &Result{Accession: accession}
	log := a.logger.With(zap.String("accession", accession))
	fail := func(step string, err error) {
		res.fail(step, err)
		log.Warn("step failed", zap.String("step", step), zap.Error(err))
	}

	if !ValidAccession(accession) {
		fail(StepMetadata, fmt.Errorf("%w: %q", ErrInvalidAccession, accession))
		return res
	}

	preds, err := a.fetcher.Predictions(ctx, accession)
	if err == nil && len(preds) == 0 {
		err = afdb.ErrNotFound
	}
	if err != nil {
		fail(StepMetadata, err)
		return res
	}
	pred := preds[0]
	res.EntryID = pred.EntryID

	if !afdb.ValidURL(pred.AMAnnotationsURL) {
		res.Skipped = "no AlphaMissense annotations"
		log.Info("skipping protein", zap.String("reason", res.Skipped))
		return res
	}

	table, err := alphamissense.Fetch(ctx, a.fetcher, pred.AMAnnotationsURL, a.columns)
	if err != nil {
		fail(StepVariants, err)
		return res
	}
	res.Records = len(table.Records)
	res.Malformed = table.Malformed
	if table.Malformed > 0 {
		log.Warn("malformed variant records", zap.Int("count", table.Malformed))
	}

	recordsPath := filepath.Join(a.outputDir, path.Base(pred.AMAnnotationsURL))
	if err := writeAtomic(recordsPath, func(f *os.File) error {
		return output.WriteRecords(f, table)
	}); err != nil {
		fail(StepRecords, err)
	} else {
		res.RecordsPath = recordsPath
	}

	valid := table.Valid()
	scores, err := residue.Aggregate(valid)
	if err != nil {
		fail(StepAggregate, err)
		return res
	}
	res.Residues = len(scores.Residues())

	a.writeScores(accession, scores, res, fail)

	var raw []byte
	if !afdb.ValidURL(pred.PDBURL) {
		fail(StepStructure, fmt.Errorf("structure: %w", afdb.ErrInvalidURL))
	} else if raw, err = a.fetcher.Get(ctx, pred.PDBURL); err != nil {
		fail(StepStructure, err)
	} else {
		annotatedPath := filepath.Join(a.outputDir, pdb.OutputName(pred.PDBURL))
		st, err := a.structure.WriteFile(annotatedPath, bytes.NewReader(raw), scores)
		if err != nil {
			fail(StepStructure, err)
		} else {
			res.AnnotatedPath = annotatedPath
			res.Stats = st
		}
	}

	if a.renderer != nil {
		a.render(accession, valid, raw, res, fail)
	}

	log.Info("processed protein",
		zap.Int("records", res.Records),
		zap.Int("residues", res.Residues),
		zap.Int("annotated_atoms", res.Stats.Annotated),
		zap.Int("failed_steps", len(res.Errors)))
	return res
}

func (a *Annotator) writeScores(accession string, scores *residue.Table, res *Result, fail func(string, error)) {
	scoresPath := filepath.Join(a.outputDir, ScoresName(accession))
	if err := writeAtomic(scoresPath, func(f *os.File) error {
		sw := output.NewScoreWriter(f)
		if err := sw.WriteHeader(); err != nil {
			return err
		}
		if err := sw.Write(scores); err != nil {
			return err
		}
		return sw.Flush()
	}); err != nil {
		fail(StepScores, err)
	} else {
		res.ScoresPath = scoresPath
	}

	if a.store != nil {
		if err := a.store.WriteResidueScores(accession, scores); err != nil {
			fail(StepStore, err)
		}
	}
}

func (a *Annotator) render(accession string, valid []alphamissense.Record, raw []byte, res *Result, fail func(string, error)) {
	heatmapPath := filepath.Join(a.outputDir, HeatmapName(accession))
	if err := a.renderer.Heatmap(valid, accession, heatmapPath); err != nil {
		fail(StepHeatmap, err)
	} else {
		res.HeatmapPath = heatmapPath
	}

	if raw == nil {
		return
	}
	series := pdb.ExtractSeries(res.AnnotatedPath, raw)
	if series.PathogenicityErr != nil {
		a.logger.Debug("no pathogenicity series",
			zap.String("accession", accession), zap.Error(series.PathogenicityErr))
	}
	if series.PLDDTErr != nil {
		a.logger.Debug("no pLDDT series",
			zap.String("accession", accession), zap.Error(series.PLDDTErr))
	}
	plotPath := filepath.Join(a.outputDir, PlotName(accession))
	if err := a.renderer.ScoreLines(series, accession, plotPath); err != nil {
		fail(StepPlot, err)
	} else {
		res.PlotPath = plotPath
	}
}

// ProcessAll processes accessions sequentially in input order. A failing
// protein never stops the batch; a cancelled context stops it before the
// next protein.
func (a *Annotator) ProcessAll(ctx context.Context, accessions []string) []*Result {
	results := make([]*Result, 0, len(accessions))
	for _, acc := range accessions {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("batch cancelled",
				zap.Int("processed", len(results)),
				zap.Int("remaining", len(accessions)-len(results)),
				zap.Error(err))
			break
		}
		results = append(results, a.Process(ctx, acc))
	}
	return results
}

// ValidAccession reports whether accession is safe to embed in a file name
// inside the output directory.
func ValidAccession(accession string) bool {
	if accession == "" || accession == "." || accession == ".." {
		return false
	}
	return !strings.ContainsAny(accession, `/\`) && filepath.Base(accession) == accession
}

// ScoresName returns the per-residue averages file name for an accession.
func ScoresName(accession string) string {
	return "AM_residue_scores_" + accession + ".tsv"
}

// HeatmapName returns the heatmap file name for an accession.
func HeatmapName(accession string) string {
	return "AM_heatmap_" + accession + ".png"
}

// PlotName returns the pathogenicity vs pLDDT plot file name for an accession.
func PlotName(accession string) string {
	return "graph_plDDT-AM-score_" + accession + ".png"
}

// writeAtomic writes dest through a temp file and rename.
func writeAtomic(dest string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
