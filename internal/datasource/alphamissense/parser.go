// Package alphamissense parses AlphaMissense amino-acid substitution tables
// (Cheng et al., Science 2023, CC BY 4.0) as published per protein by the
// AlphaFold Database, e.g. AF-P04637-F1-aa-substitutions.csv:
//
//	uniprot_id,protein_variant,am_pathogenicity,am_class
//	P04637,M1A,0.3130,likely_benign
package alphamissense

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Default column names of the AFDB substitution table.
const (
	ColProteinVariant  = "protein_variant"
	ColAMPathogenicity = "am_pathogenicity"
)

// MaxResidue is the highest residue number a record may carry. The longest
// known protein (titin) has about 35,000 residues.
const MaxResidue = 1 << 16

// ErrDataUnavailable is returned when a variant table cannot be obtained or
// read as a table at all. Callers treat it as "no data for this protein".
var ErrDataUnavailable = errors.New("alphamissense data unavailable")

// Columns names the identifier and score columns of a variant table.
type Columns struct {
	Variant string
	Score   string
}

// DefaultColumns returns the column names used by AFDB tables.
func DefaultColumns() Columns {
	return Columns{Variant: ColProteinVariant, Score: ColAMPathogenicity}
}

func (c Columns) withDefaults() Columns {
	if c.Variant == "" {
		c.Variant = ColProteinVariant
	}
	if c.Score == "" {
		c.Score = ColAMPathogenicity
	}
	return c
}

// Variant is a parsed protein substitution such as M1V. Zero fields are
// absent: Ref and Alt are 0 when no letter matched, HasResidue is false when
// the identifier carried no digits.
type Variant struct {
	Ref        byte
	Residue    int
	HasResidue bool
	Alt        byte
}

// ParseVariant extracts the leading uppercase letter, the first digit run
// and the trailing uppercase letter of id. Each part is extracted on its own,
// so a malformed id yields a Variant with the corresponding fields absent.
func ParseVariant(id string) Variant {
	var v Variant
	if id == "" {
		return v
	}
	if isUpper(id[0]) {
		v.Ref = id[0]
	}
	if last := id[len(id)-1]; isUpper(last) {
		v.Alt = last
	}

	start := strings.IndexAny(id, "0123456789")
	if start < 0 {
		return v
	}
	end := start
	for end < len(id) && id[end] >= '0' && id[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(id[start:end])
	if err != nil {
		// digit run too long for an int; treat as missing rather than clamp
		return v
	}
	v.Residue = n
	v.HasResidue = true
	return v
}

// Complete reports whether all three parts were found.
func (v Variant) Complete() bool {
	return v.Ref != 0 && v.Alt != 0 && v.HasResidue
}

// String rebuilds the identifier from its parts. Absent parts are omitted.
func (v Variant) String() string {
	var sb strings.Builder
	if v.Ref != 0 {
		sb.WriteByte(v.Ref)
	}
	if v.HasResidue {
		sb.WriteString(strconv.Itoa(v.Residue))
	}
	if v.Alt != 0 {
		sb.WriteByte(v.Alt)
	}
	return sb.String()
}

func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// Record is one row of a variant table.
type Record struct {
	Variant
	Score    float64
	HasScore bool
}

// Valid reports whether the record may take part in aggregation. Residue
// numbers above MaxResidue are rejected.
func (r Record) Valid() bool {
	return r.Complete() && r.HasScore && r.Residue <= MaxResidue
}

// Table holds every parsed row of a variant table, including malformed ones.
type Table struct {
	Records   []Record
	Malformed int // rows that are not Valid
}

// Valid returns the valid records in input order.
func (t *Table) Valid() []Record {
	out := make([]Record, 0, len(t.Records)-t.Malformed)
	for _, r := range t.Records {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Parse reads a comma-separated variant table. Rows with a malformed
// identifier or score are kept with the affected fields absent. Failure to
// read the input as a table at all yields an error wrapping
// ErrDataUnavailable.
func Parse(r io.Reader, cols Columns) (*Table, error) {
	cols = cols.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty table", ErrDataUnavailable)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrDataUnavailable, err)
	}

	variantIdx, scoreIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")) {
		case cols.Variant:
			variantIdx = i
		case cols.Score:
			scoreIdx = i
		}
	}
	if variantIdx < 0 {
		return nil, fmt.Errorf("%w: missing %q column", ErrDataUnavailable, cols.Variant)
	}
	if scoreIdx < 0 {
		return nil, fmt.Errorf("%w: missing %q column", ErrDataUnavailable, cols.Score)
	}

	t := &Table{}
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}

		var rec Record
		if variantIdx < len(fields) {
			rec.Variant = ParseVariant(strings.TrimSpace(fields[variantIdx]))
		}
		if scoreIdx < len(fields) {
			s, err := strconv.ParseFloat(strings.TrimSpace(fields[scoreIdx]), 64)
			if err == nil && !math.IsNaN(s) && !math.IsInf(s, 0) {
				rec.Score = s
				rec.HasScore = true
			}
		}
		if !rec.Valid() {
			t.Malformed++
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Getter fetches a whole remote resource.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetch retrieves and parses the variant table at url. Retrieval failures
// are reported as ErrDataUnavailable.
func Fetch(ctx context.Context, g Getter, url string, cols Columns) (*Table, error) {
	body, err := g.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return Parse(bytes.NewReader(body), cols)
}
