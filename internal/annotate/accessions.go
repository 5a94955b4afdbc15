package annotate

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// ReadAccessions reads UniProt accessions separated by commas, whitespace or
// newlines. Blank entries are skipped and input order is kept.
func ReadAccessions(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read accessions: %w", err)
	}
	ids := strings.FieldsFunc(string(data), func(c rune) bool {
		return c == ',' || unicode.IsSpace(c)
	})
	return ids, nil
}
