package annotate

import (
	"errors"
	"fmt"

	"github.com/inodb/amfold/internal/pdb"
)

// Pipeline step names used in StepError.
const (
	StepMetadata  = "metadata"
	StepVariants  = "variants"
	StepRecords   = "records"
	StepAggregate = "aggregate"
	StepScores    = "scores"
	StepStore     = "store"
	StepStructure = "structure"
	StepHeatmap   = "heatmap"
	StepPlot      = "plot"
)

// StepError is a failure of one pipeline step for one protein.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result summarises the processing of one accession.
type Result struct {
	Accession string
	EntryID   string
	// Skipped is set when the protein has nothing to process.
	Skipped string

	Records   int
	Malformed int
	Residues  int
	Stats     pdb.Stats

	RecordsPath   string
	ScoresPath    string
	AnnotatedPath string
	HeatmapPath   string
	PlotPath      string

	Errors []*StepError
}

func (r *Result) fail(step string, err error) {
	r.Errors = append(r.Errors, &StepError{Step: step, Err: err})
}

// Err joins all step failures, nil when every step succeeded.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Failed reports whether the named step failed.
func (r *Result) Failed(step string) bool {
	for _, e := range r.Errors {
		if e.Step == step {
			return true
		}
	}
	return false
}
