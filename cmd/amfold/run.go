package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/amfold/internal/annotate"
	"github.com/inodb/amfold/internal/datasource/alphamissense"
	"github.com/inodb/amfold/internal/duckdb"
	"github.com/inodb/amfold/internal/plot"
)

func newRunCmd(newLog func() *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [options] <ids-file>",
		Short: "Annotate AlphaFold structures with AlphaMissense scores",
		Long: `Process every UniProt accession in <ids-file> (comma, space or newline
separated; '-' for stdin). For each protein the AlphaMissense table is parsed,
scores are averaged per residue and written into the B-factor column of the
predicted structure. A heatmap and a pathogenicity vs pLDDT plot are rendered
unless --no-plots is given.`,
		Example: `  amfold run ids.txt
  amfold run --output results --store scores.duckdb ids.txt
  echo P04637 | amfold run -`,
		Args: usageArgs(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{
				keyOutputDir:   "output",
				keyStorePath:   "store",
				keyIDColumn:    "id-column",
				keyScoreColumn: "score-column",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if noPlots, _ := cmd.Flags().GetBool("no-plots"); noPlots {
				viper.Set(keyPlots, false)
			}
			if lenient, _ := cmd.Flags().GetBool("lenient"); lenient {
				viper.Set(keyStrict, false)
			}
			return runRun(cmd.Context(), args[0], newLog())
		},
	}

	cmd.Flags().StringP("output", "o", annotate.DefaultOutputDir, "Output directory")
	cmd.Flags().String("store", "", "DuckDB file for residue scores (disabled if empty)")
	cmd.Flags().Bool("no-plots", false, "Skip heatmap and score plot rendering")
	cmd.Flags().Bool("lenient", false, "Splice scores wider than the B-factor field instead of failing")
	cmd.Flags().String("id-column", alphamissense.ColProteinVariant, "Variant identifier column")
	cmd.Flags().String("score-column", alphamissense.ColAMPathogenicity, "Pathogenicity score column")

	return cmd
}

func runRun(ctx context.Context, idsPath string, logger *zap.Logger) error {
	defer logger.Sync() //nolint:errcheck

	ids, err := readAccessions(idsPath)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ann := annotate.NewAnnotator(newClient(logger))
	ann.SetLogger(logger)
	ann.SetOutputDir(viper.GetString(keyOutputDir))
	ann.SetColumns(alphamissense.Columns{
		Variant: viper.GetString(keyIDColumn),
		Score:   viper.GetString(keyScoreColumn),
	})
	ann.SetStrict(viper.GetBool(keyStrict))
	if viper.GetBool(keyPlots) {
		ann.SetRenderer(plot.Renderer{})
	}

	if path := viper.GetString(keyStorePath); path != "" {
		store, err := duckdb.Open(path)
		if err != nil {
			return fmt.Errorf("opening score store: %w", err)
		}
		defer store.Close()
		ann.SetStore(store)
		logger.Info("storing residue scores", zap.String("path", path))
	}

	logger.Info("processing proteins",
		zap.Int("count", len(ids)),
		zap.String("output", viper.GetString(keyOutputDir)))

	results := ann.ProcessAll(ctx, ids)

	var failed, skipped int
	for _, r := range results {
		switch {
		case r.Err() != nil:
			failed++
		case r.Skipped != "":
			skipped++
		}
	}
	fmt.Fprintf(os.Stderr, "Processed %d of %d proteins (%d with errors, %d skipped)\n",
		len(results), len(ids), failed, skipped)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}
