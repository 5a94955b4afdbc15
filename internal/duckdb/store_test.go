package duckdb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/amfold/internal/residue"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Equal(t, "", s.Path())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scores.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteResidueScores("P00001", residue.NewTable([]float64{math.NaN(), 0.5})))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	score, ok, err := s.LookupResidue("P00001", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.5, score)
}

func TestWriteAndLookupResidueScores(t *testing.T) {
	s := openInMemory(t)

	table := residue.NewTable([]float64{math.NaN(), 0.2, math.NaN(), 0.9})
	require.NoError(t, s.WriteResidueScores("P00001", table))

	score, ok, err := s.LookupResidue("P00001", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.2, score)

	_, ok, err = s.LookupResidue("P00001", 2)
	require.NoError(t, err)
	assert.False(t, ok, "residues without data are not stored")

	_, ok, err = s.LookupResidue("Q99999", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Equal(t, []ResidueScore{{Residue: 1, Score: 0.2}, {Residue: 3, Score: 0.9}}, all)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWriteResidueScores_Replaces(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.WriteResidueScores("P00001", residue.NewTable([]float64{math.NaN(), 0.2, 0.9})))
	require.NoError(t, s.WriteResidueScores("P00001", residue.NewTable([]float64{math.NaN(), 0.4})))
	require.NoError(t, s.WriteResidueScores("P00002", residue.NewTable([]float64{math.NaN(), 0.7})))

	all, err := s.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Equal(t, []ResidueScore{{Residue: 1, Score: 0.4}}, all)

	accs, err := s.Accessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"P00001", "P00002"}, accs)
}

func TestResidueScoresEmpty(t *testing.T) {
	s := openInMemory(t)

	all, err := s.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Empty(t, all)

	accs, err := s.Accessions()
	require.NoError(t, err)
	assert.Empty(t, accs)
}

// duplicateScores reports residue 1 twice, which violates the primary key.
type duplicateScores struct{}

func (duplicateScores) Residues() []int { return []int{1, 1} }
func (duplicateScores) At(int) (float64, bool) {
	return 0.7, true
}

func TestWriteResidueScores_FailureKeepsPreviousRows(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.WriteResidueScores("P00001", residue.NewTable([]float64{math.NaN(), 0.2, 0.9})))

	err := s.WriteResidueScores("P00001", duplicateScores{})
	require.Error(t, err)

	all, err := s.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Equal(t, []ResidueScore{{Residue: 1, Score: 0.2}, {Residue: 2, Score: 0.9}}, all)

	// the store stays usable after the rollback
	require.NoError(t, s.WriteResidueScores("P00001", residue.NewTable([]float64{math.NaN(), 0.4})))
	all, err = s.ResidueScores("P00001")
	require.NoError(t, err)
	assert.Equal(t, []ResidueScore{{Residue: 1, Score: 0.4}}, all)
}
