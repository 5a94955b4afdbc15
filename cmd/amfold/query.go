package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/amfold/internal/duckdb"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [options] [accession [residue]]",
		Short: "Query stored residue scores",
		Long: `Print the mean AlphaMissense pathogenicity stored by 'amfold run --store'.
Without arguments the stored accessions are listed.`,
		Example: `  amfold query --store scores.duckdb
  amfold query --store scores.duckdb P04637
  amfold query --store scores.duckdb P04637 175`,
		Args: usageArgs(cobra.MaximumNArgs(2)),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{
				keyStorePath: "store",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.OutOrStdout(), viper.GetString(keyStorePath), args)
		},
	}

	cmd.Flags().String("store", "", "DuckDB file written by 'amfold run --store'")

	return cmd
}

func runQuery(w io.Writer, path string, args []string) error {
	if path == "" {
		return &usageError{errors.New("no score store configured (use --store or set store.path)")}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening score store: %w", err)
	}

	var residue int
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return &usageError{fmt.Errorf("invalid residue number %q", args[1])}
		}
		residue = n
	}

	store, err := duckdb.Open(path)
	if err != nil {
		return fmt.Errorf("opening score store: %w", err)
	}
	defer store.Close()

	switch len(args) {
	case 0:
		accs, err := store.Accessions()
		if err != nil {
			return err
		}
		for _, acc := range accs {
			fmt.Fprintln(w, acc)
		}
		return nil

	case 1:
		scores, err := store.ResidueScores(args[0])
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			return fmt.Errorf("no scores stored for %s", args[0])
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "residue_number\tmean_pathogenicity")
		for _, rs := range scores {
			fmt.Fprintf(tw, "%d\t%.4f\n", rs.Residue, rs.Score)
		}
		return tw.Flush()

	default:
		score, ok, err := store.LookupResidue(args[0], residue)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no score stored for %s residue %d", args[0], residue)
		}
		fmt.Fprintf(w, "%.4f\n", score)
		return nil
	}
}
