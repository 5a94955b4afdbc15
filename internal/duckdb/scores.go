package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// Scores is the per-residue lookup persisted by WriteResidueScores.
type Scores interface {
	Residues() []int
	At(residue int) (float64, bool)
}

// ResidueScore is one stored residue average.
type ResidueScore struct {
	Residue int
	Score   float64
}

// WriteResidueScores replaces the stored scores of accession with those in
// scores. The delete and the Appender insert run in one transaction on a
// single connection, so a failed write leaves the previous rows in place.
func (s *Store) WriteResidueScores(accession string, scores Scores) (err error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck
		}
	}()

	if _, err := conn.ExecContext(ctx, "DELETE FROM residue_scores WHERE accession=?", accession); err != nil {
		return fmt.Errorf("clear residue scores: %w", err)
	}
	if err := appendResidueScores(conn, accession, scores); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit residue scores: %w", err)
	}
	return nil
}

func appendResidueScores(conn *sql.Conn, accession string, scores Scores) error {
	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "residue_scores")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}

	for _, res := range scores.Residues() {
		score, ok := scores.At(res)
		if !ok {
			continue
		}
		if err := appender.AppendRow(accession, int32(res), score); err != nil {
			appender.Close()
			return fmt.Errorf("append residue score: %w", err)
		}
	}

	if err := appender.Close(); err != nil {
		return fmt.Errorf("flush residue scores: %w", err)
	}
	return nil
}

// LookupResidue returns the stored score of one residue.
func (s *Store) LookupResidue(accession string, residue int) (float64, bool, error) {
	var score float64
	err := s.db.QueryRow(
		"SELECT mean_pathogenicity FROM residue_scores WHERE accession=? AND residue_number=?",
		accession, residue,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query residue score: %w", err)
	}
	return score, true, nil
}

// ResidueScores returns all stored scores of accession ordered by residue.
func (s *Store) ResidueScores(accession string) ([]ResidueScore, error) {
	rows, err := s.db.Query(
		"SELECT residue_number, mean_pathogenicity FROM residue_scores WHERE accession=? ORDER BY residue_number",
		accession,
	)
	if err != nil {
		return nil, fmt.Errorf("query residue scores: %w", err)
	}
	defer rows.Close()

	var out []ResidueScore
	for rows.Next() {
		var rs ResidueScore
		if err := rows.Scan(&rs.Residue, &rs.Score); err != nil {
			return nil, fmt.Errorf("scan residue score: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate residue scores: %w", err)
	}
	return out, nil
}

// Accessions returns the accessions that have stored scores.
func (s *Store) Accessions() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT accession FROM residue_scores ORDER BY accession")
	if err != nil {
		return nil, fmt.Errorf("query accessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var acc string
		if err := rows.Scan(&acc); err != nil {
			return nil, fmt.Errorf("scan accession: %w", err)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// Count returns the number of stored residue scores.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM residue_scores").Scan(&count); err != nil {
		return 0, fmt.Errorf("count residue scores: %w", err)
	}
	return count, nil
}
