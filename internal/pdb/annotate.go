// Package pdb rewrites and reads the fixed-width ATOM/HETATM records of PDB
// structure files. Columns are addressed by byte offset, never by
// whitespace tokenizing:
//
//	[22,26)  residue sequence number
//	[60,66)  temperature factor (pLDDT in AlphaFold models)
package pdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Column offsets (0-based, half-open).
const (
	resSeqStart  = 22
	resSeqEnd    = 26
	bFactorStart = 60
	bFactorEnd   = 66
	bFactorWidth = bFactorEnd - bFactorStart
)

var (
	// ErrFieldOverflow is returned in strict mode when a formatted score is
	// wider than the 6-character B-factor field.
	ErrFieldOverflow = errors.New("score does not fit B-factor field")
	// ErrNoScores is returned when annotation is requested without a score table.
	ErrNoScores = errors.New("no residue scores to annotate with")
)

// Scores is the residue score lookup used for annotation.
type Scores interface {
	At(residue int) (float64, bool)
}

// IsAtomLine reports whether line is an ATOM or HETATM record.
func IsAtomLine(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

// ResidueNumber parses the residue sequence number of an atom line.
func ResidueNumber(line string) (int, bool) {
	if len(line) < resSeqEnd {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[resSeqStart:resSeqEnd]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatBFactor formats score to 2 decimals, right-justified in at least 6
// characters. Wider values are returned as is.
func FormatBFactor(score float64) string {
	s := strconv.FormatFloat(score, 'f', 2, 64)
	if len(s) < bFactorWidth {
		s = strings.Repeat(" ", bFactorWidth-len(s)) + s
	}
	return s
}

// AnnotateLine returns line with its B-factor field replaced by the score of
// its residue. Lines that are not atom records, or whose residue has no
// score, are returned unchanged. In strict mode a score wider than the field
// is an error; otherwise it is spliced in unclamped.
func AnnotateLine(line string, scores Scores, strict bool) (string, bool, error) {
	if !IsAtomLine(line) {
		return line, false, nil
	}
	res, ok := ResidueNumber(line)
	if !ok {
		return line, false, nil
	}
	score, ok := scores.At(res)
	if !ok {
		return line, false, nil
	}

	field := FormatBFactor(score)
	if strict && len(field) > bFactorWidth {
		return line, false, fmt.Errorf("%w: residue %d score %q", ErrFieldOverflow, res, field)
	}

	head := line
	if len(head) >= bFactorStart {
		head = line[:bFactorStart]
	} else {
		head += strings.Repeat(" ", bFactorStart-len(head))
	}
	tail := ""
	if len(line) > bFactorEnd {
		tail = line[bFactorEnd:]
	}
	return head + field + tail, true, nil
}

// Stats counts what an annotation pass touched.
type Stats struct {
	Lines     int
	Atoms     int
	Annotated int
}

// Annotator writes residue scores into structure files.
type Annotator struct {
	strict bool
	logger *zap.Logger
}

// NewAnnotator creates an annotator in strict mode.
func NewAnnotator() *Annotator {
	return &Annotator{
		strict: true,
		logger: zap.NewNop(),
	}
}

// SetStrict configures whether scores wider than the B-factor field are
// rejected (true) or spliced in unclamped (false).
func (a *Annotator) SetStrict(strict bool) {
	a.strict = strict
}

// SetLogger sets the logger for debug messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Annotate copies r to w line by line, annotating atom lines. Line order is
// preserved and each line keeps the terminator it was read with (LF, CRLF or
// none on a final unterminated line).
func (a *Annotator) Annotate(r io.Reader, w io.Writer, scores Scores) (Stats, error) {
	var st Stats
	if scores == nil {
		return st, ErrNoScores
	}

	bw := bufio.NewWriter(w)
	br := bufio.NewReader(r)
	for {
		raw, rerr := br.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return st, fmt.Errorf("read structure: %w", rerr)
		}
		if raw == "" {
			break
		}

		line, eol := splitEOL(raw)
		st.Lines++
		if IsAtomLine(line) {
			st.Atoms++
		}
		out, changed, err := AnnotateLine(line, scores, a.strict)
		if err != nil {
			return st, fmt.Errorf("line %d: %w", st.Lines, err)
		}
		if changed {
			st.Annotated++
		}
		if _, err := bw.WriteString(out); err != nil {
			return st, err
		}
		if _, err := bw.WriteString(eol); err != nil {
			return st, err
		}
		if rerr == io.EOF {
			break
		}
	}
	return st, bw.Flush()
}

// splitEOL separates a line from its terminator.
func splitEOL(raw string) (line, eol string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}

// WriteFile annotates content and writes it to dest as a whole-file
// overwrite. Nothing is written when annotation fails.
func (a *Annotator) WriteFile(dest string, content io.Reader, scores Scores) (Stats, error) {
	if scores == nil {
		return Stats{}, ErrNoScores
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Stats{}, fmt.Errorf("create output directory: %w", err)
	}

	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create file: %w", err)
	}

	st, err := a.Annotate(content, f, scores)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return st, fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return st, fmt.Errorf("rename file: %w", err)
	}

	a.logger.Debug("wrote annotated structure",
		zap.String("path", dest),
		zap.Int("atoms", st.Atoms),
		zap.Int("annotated", st.Annotated))
	return st, nil
}

// OutputName returns the annotated file name for a structure locator,
// e.g. AM_scores_AF-P04637-F1-model_v4.pdb.
func OutputName(structureURL string) string {
	return "AM_scores_" + path.Base(structureURL)
}
