package annotate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/amfold/internal/datasource/afdb"
	"github.com/inodb/amfold/internal/datasource/alphamissense"
	"github.com/inodb/amfold/internal/duckdb"
	"github.com/inodb/amfold/internal/pdb"
)

const (
	amURL  = "https://example.org/files/AF-P00001-F1-aa-substitutions.csv"
	pdbURL = "https://example.org/files/AF-P00001-F1-model_v4.pdb"
)

type fakeFetcher struct {
	predictions map[string][]afdb.Prediction
	files       map[string]string
	gets        []string
}

func (f *fakeFetcher) Predictions(_ context.Context, accession string) ([]afdb.Prediction, error) {
	p, ok := f.predictions[accession]
	if !ok {
		return nil, afdb.ErrNotFound
	}
	return p, nil
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.gets = append(f.gets, url)
	body, ok := f.files[url]
	if !ok {
		return nil, &afdb.StatusError{URL: url, Status: 404}
	}
	return []byte(body), nil
}

type fakeRenderer struct {
	heatmaps []string
	series   []pdb.Series
}

func (r *fakeRenderer) Heatmap(records []alphamissense.Record, accession, path string) error {
	r.heatmaps = append(r.heatmaps, accession)
	return os.WriteFile(path, []byte("png"), 0644)
}

func (r *fakeRenderer) ScoreLines(series pdb.Series, accession, path string) error {
	r.series = append(r.series, series)
	return os.WriteFile(path, []byte("png"), 0644)
}

func atomLine(record string, serial, res int, bfactor float64) string {
	return fmt.Sprintf("%-6s%5d %-4s%1s%3s %1s%4d%1s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s%2s",
		record, serial, " CA", "", "MET", "A", res, "", 1.0, 2.0, 3.0, 1.0, bfactor, "C", "")
}

func testStructure() string {
	return strings.Join([]string{
		"MODEL        1",
		atomLine("ATOM", 1, 1, 47.19),
		atomLine("ATOM", 2, 1, 47.19),
		atomLine("ATOM", 3, 2, 88.50),
		atomLine("HETATM", 4, 3, 91.02),
		"ENDMDL",
	}, "\n") + "\n"
}

const testVariants = `protein_variant,am_pathogenicity
M1V,0.1
M1K,0.3
A2G,0.9
A3,0.4
`

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		predictions: map[string][]afdb.Prediction{
			"P00001": {{EntryID: "AF-P00001-F1", AMAnnotationsURL: amURL, PDBURL: pdbURL}},
		},
		files: map[string]string{
			amURL:  testVariants,
			pdbURL: testStructure(),
		},
	}
}

func newTestAnnotator(t *testing.T, f Fetcher) (*Annotator, string) {
	t.Helper()
	dir := t.TempDir()
	a := NewAnnotator(f)
	a.SetOutputDir(dir)
	return a, dir
}

func TestProcess(t *testing.T) {
	a, dir := newTestAnnotator(t, newFetcher())
	r := &fakeRenderer{}
	a.SetRenderer(r)

	res := a.Process(context.Background(), "P00001")
	require.NoError(t, res.Err())
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "AF-P00001-F1", res.EntryID)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 1, res.Malformed, "A3 has no alternate residue")
	assert.Equal(t, 2, res.Residues)
	assert.Equal(t, pdb.Stats{Lines: 6, Atoms: 4, Annotated: 3}, res.Stats)

	records, err := os.ReadFile(filepath.Join(dir, "AF-P00001-F1-aa-substitutions.csv"))
	require.NoError(t, err)
	assert.Equal(t, "reference_aa,residue_number,alternative_aa,pathogenicity_score\n"+
		"M,1,V,0.1\nM,1,K,0.3\nA,2,G,0.9\nA,3,,0.4\n", string(records))

	scores, err := os.ReadFile(filepath.Join(dir, "AM_residue_scores_P00001.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "residue_number\tmean_pathogenicity\n1\t0.2000\n2\t0.9000\n", string(scores))

	annotated, err := os.ReadFile(filepath.Join(dir, "AM_scores_AF-P00001-F1-model_v4.pdb"))
	require.NoError(t, err)
	lines := strings.Split(string(annotated), "\n")
	assert.Equal(t, "  0.20", lines[1][60:66])
	assert.Equal(t, "  0.20", lines[2][60:66])
	assert.Equal(t, "  0.90", lines[3][60:66])
	assert.Equal(t, " 91.02", lines[4][60:66], "residue beyond the table is unchanged")

	assert.FileExists(t, filepath.Join(dir, "AM_heatmap_P00001.png"))
	assert.FileExists(t, filepath.Join(dir, "graph_plDDT-AM-score_P00001.png"))
	require.Len(t, r.series, 1)
	assert.Equal(t, []float64{0.2, 0.2, 0.9, 91.02}, r.series[0].Pathogenicity)
	assert.Equal(t, []float64{47.19, 47.19, 88.5, 91.02}, r.series[0].PLDDT)
}

func TestProcess_NotFound(t *testing.T) {
	a, dir := newTestAnnotator(t, newFetcher())

	res := a.Process(context.Background(), "Q99999")
	require.Error(t, res.Err())
	assert.True(t, res.Failed(StepMetadata))
	assert.ErrorIs(t, res.Err(), afdb.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcess_EmptyPredictions(t *testing.T) {
	f := newFetcher()
	f.predictions["P00002"] = nil
	a, _ := newTestAnnotator(t, f)

	res := a.Process(context.Background(), "P00002")
	assert.ErrorIs(t, res.Err(), afdb.ErrNotFound)
}

func TestProcess_NoAlphaMissense(t *testing.T) {
	f := newFetcher()
	f.predictions["P00001"][0].AMAnnotationsURL = ""
	a, _ := newTestAnnotator(t, f)

	res := a.Process(context.Background(), "P00001")
	assert.NoError(t, res.Err())
	assert.NotEmpty(t, res.Skipped)
	assert.Empty(t, f.gets)
}

func TestProcess_VariantsUnavailable(t *testing.T) {
	f := newFetcher()
	delete(f.files, amURL)
	a, dir := newTestAnnotator(t, f)

	res := a.Process(context.Background(), "P00001")
	assert.True(t, res.Failed(StepVariants))
	assert.ErrorIs(t, res.Err(), alphamissense.ErrDataUnavailable)
	assert.NoFileExists(t, filepath.Join(dir, "AM_scores_AF-P00001-F1-model_v4.pdb"))
}

func TestProcess_AllMalformed(t *testing.T) {
	f := newFetcher()
	f.files[amURL] = "protein_variant,am_pathogenicity\nM1V,bad\nX,0.2\n"
	a, dir := newTestAnnotator(t, f)

	res := a.Process(context.Background(), "P00001")
	assert.True(t, res.Failed(StepAggregate))
	assert.Equal(t, 2, res.Malformed)
	assert.FileExists(t, filepath.Join(dir, "AF-P00001-F1-aa-substitutions.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "AM_scores_AF-P00001-F1-model_v4.pdb"))
	assert.NoFileExists(t, filepath.Join(dir, "AM_residue_scores_P00001.tsv"))
}

func TestProcess_StructureUnavailable(t *testing.T) {
	f := newFetcher()
	delete(f.files, pdbURL)
	a, dir := newTestAnnotator(t, f)
	r := &fakeRenderer{}
	a.SetRenderer(r)

	res := a.Process(context.Background(), "P00001")
	assert.True(t, res.Failed(StepStructure))
	assert.False(t, res.Failed(StepScores))
	assert.FileExists(t, filepath.Join(dir, "AM_residue_scores_P00001.tsv"))
	assert.Equal(t, []string{"P00001"}, r.heatmaps, "heatmap only needs the variant table")
	assert.Empty(t, r.series)
}

func TestProcess_Overflow(t *testing.T) {
	f := newFetcher()
	f.files[amURL] = "protein_variant,am_pathogenicity\nM1V,12345.5\n"
	a, dir := newTestAnnotator(t, f)

	res := a.Process(context.Background(), "P00001")
	assert.ErrorIs(t, res.Err(), pdb.ErrFieldOverflow)
	assert.NoFileExists(t, filepath.Join(dir, "AM_scores_AF-P00001-F1-model_v4.pdb"))

	a.SetStrict(false)
	res = a.Process(context.Background(), "P00001")
	require.NoError(t, res.Err())
	annotated, err := os.ReadFile(res.AnnotatedPath)
	require.NoError(t, err)
	assert.Contains(t, string(annotated), "12345.50")
}

func TestProcess_Store(t *testing.T) {
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	a, _ := newTestAnnotator(t, newFetcher())
	a.SetStore(store)

	res := a.Process(context.Background(), "P00001")
	require.NoError(t, res.Err())

	all, err := store.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Equal(t, []duckdb.ResidueScore{{Residue: 1, Score: 0.2}, {Residue: 2, Score: 0.9}}, all)
}

type failingStore struct{}

func (failingStore) WriteResidueScores(string, duckdb.Scores) error {
	return errors.New("disk full")
}

func TestProcess_StoreFailureContinues(t *testing.T) {
	a, _ := newTestAnnotator(t, newFetcher())
	a.SetStore(failingStore{})

	res := a.Process(context.Background(), "P00001")
	assert.True(t, res.Failed(StepStore))
	assert.NotEmpty(t, res.AnnotatedPath)
}

func TestProcessAll(t *testing.T) {
	a, _ := newTestAnnotator(t, newFetcher())

	results := a.ProcessAll(context.Background(), []string{"Q99999", "P00001"})
	require.Len(t, results, 2)
	assert.Equal(t, "Q99999", results[0].Accession)
	assert.Error(t, results[0].Err())
	assert.Equal(t, "P00001", results[1].Accession)
	assert.NoError(t, results[1].Err())
}

func TestProcessAll_OversizedResidueDoesNotStopBatch(t *testing.T) {
	f := newFetcher()
	hugeURL := "https://example.org/files/AF-P00002-F1-aa-substitutions.csv"
	f.predictions["P00002"] = []afdb.Prediction{{EntryID: "AF-P00002-F1", AMAnnotationsURL: hugeURL, PDBURL: pdbURL}}
	f.files[hugeURL] = "protein_variant,am_pathogenicity\nM999999999999999999V,0.2\nM2000000000V,0.3\n"
	a, dir := newTestAnnotator(t, f)

	var results []*Result
	require.NotPanics(t, func() {
		results = a.ProcessAll(context.Background(), []string{"P00002", "P00001"})
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Failed(StepAggregate))
	assert.Equal(t, 2, results[0].Malformed)
	assert.NoError(t, results[1].Err())
	assert.FileExists(t, filepath.Join(dir, "AM_residue_scores_P00001.tsv"))
}

func TestProcessAll_Cancelled(t *testing.T) {
	a, _ := newTestAnnotator(t, newFetcher())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := a.ProcessAll(ctx, []string{"P00001", "P00002"})
	assert.Empty(t, results)
}

func TestProcessAll_RejectsPathAccessions(t *testing.T) {
	f := newFetcher()
	f.predictions["../x"] = f.predictions["P00001"]
	base := t.TempDir()
	out := filepath.Join(base, "out")
	a := NewAnnotator(f)
	a.SetOutputDir(out)
	a.SetRenderer(&fakeRenderer{})

	results := a.ProcessAll(context.Background(), []string{"../x", `a\b`, "..", "P00001"})
	require.Len(t, results, 4)
	for _, r := range results[:3] {
		assert.ErrorIs(t, r.Err(), ErrInvalidAccession, r.Accession)
	}
	assert.NoError(t, results[3].Err())

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].Name())
}

func TestValidAccession(t *testing.T) {
	assert.True(t, ValidAccession("P04637"))
	assert.True(t, ValidAccession("A0A024R1R8"))
	for _, bad := range []string{"", ".", "..", "../x", "x/y", `x\y`, "/abs"} {
		assert.False(t, ValidAccession(bad), bad)
	}
}

func TestReadAccessions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"comma", "P04637,Q9Y6K9", []string{"P04637", "Q9Y6K9"}},
		{"spaces", "P04637, Q9Y6K9 ,P38398", []string{"P04637", "Q9Y6K9", "P38398"}},
		{"newlines", "P04637\nQ9Y6K9\r\n\nP38398\n", []string{"P04637", "Q9Y6K9", "P38398"}},
		{"blanks", ",, ,P04637,,", []string{"P04637"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAccessions(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
