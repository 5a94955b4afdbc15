package pdb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// BFactors reads the B-factor column of every atom line in r.
func BFactors(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if !IsAtomLine(line) {
			continue
		}
		if len(line) < bFactorEnd {
			return nil, fmt.Errorf("line %d: atom record too short for B-factor", lineNo)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[bFactorStart:bFactorEnd]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse B-factor: %w", lineNo, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Series holds the two per-atom sequences compared in the score plot.
// Each source is independent: a failed source leaves its sequence empty and
// records why.
type Series struct {
	Pathogenicity    []float64
	PLDDT            []float64
	PathogenicityErr error
	PLDDTErr         error
}

// ExtractSeries reads averaged pathogenicity from the annotated structure at
// annotatedPath and pLDDT from the raw structure content.
func ExtractSeries(annotatedPath string, raw []byte) Series {
	var s Series

	if annotatedPath == "" {
		s.PathogenicityErr = fmt.Errorf("no annotated structure")
	} else if f, err := os.Open(annotatedPath); err != nil {
		s.PathogenicityErr = fmt.Errorf("open annotated structure: %w", err)
	} else {
		s.Pathogenicity, s.PathogenicityErr = BFactors(f)
		f.Close()
	}

	if len(raw) == 0 {
		s.PLDDTErr = fmt.Errorf("no structure content")
	} else {
		s.PLDDT, s.PLDDTErr = BFactors(bytes.NewReader(raw))
	}
	return s
}
