package plot

import (
	"github.com/inodb/amfold/internal/datasource/alphamissense"
	"github.com/inodb/amfold/internal/pdb"
)

// Renderer exposes Heatmap and ScoreLines as methods so the batch driver can
// take them through an interface.
type Renderer struct{}

// Heatmap calls the package-level Heatmap.
func (Renderer) Heatmap(records []alphamissense.Record, accession, path string) error {
	return Heatmap(records, accession, path)
}

// ScoreLines calls the package-level ScoreLines.
func (Renderer) ScoreLines(series pdb.Series, accession, path string) error {
	return ScoreLines(series, accession, path)
}
