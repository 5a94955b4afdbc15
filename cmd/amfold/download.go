package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/inodb/amfold/internal/datasource/afdb"
)

func newDownloadCmd(newLog func() *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [options] <ids-file>",
		Short: "Download AlphaFold DB resources",
		Long: `Download the AlphaMissense table, PDB and mmCIF structures and PAE image
of every UniProt accession in <ids-file>. Files that already exist are kept.`,
		Example: `  # Download into ./downloaded_files
  amfold download ids.txt

  # Include the hg19 and hg38 AlphaMissense tables
  amfold download --extract-am-files ids.txt`,
		Args: usageArgs(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{
				keyDownloadDir: "output",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			genomic, _ := cmd.Flags().GetBool("extract-am-files")
			progress, _ := cmd.Flags().GetBool("progress")
			return runDownload(cmd.Context(), args[0], genomic, progress, newLog())
		},
	}

	cmd.Flags().StringP("output", "o", "downloaded_files", "Output directory")
	cmd.Flags().Bool("extract-am-files", false, "Also download the hg19 and hg38 AlphaMissense tables")
	cmd.Flags().Bool("progress", true, "Show a progress bar")

	return cmd
}

// downloadStats counts the outcome of a download batch.
type downloadStats struct {
	Files    int
	Failed   int
	NotFound int
}

func runDownload(ctx context.Context, idsPath string, genomic, progress bool, logger *zap.Logger) error {
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

	dir := viper.GetString(keyDownloadDir)
	client := newClient(logger)

	var bar *pb.ProgressBar
	if progress {
		bar = pb.StartNew(len(ids))
		defer bar.Finish()
	}

	var st downloadStats
	for _, acc := range ids {
		if ctx.Err() != nil {
			break
		}
		downloadAccession(ctx, client, acc, dir, genomic, &st, logger)
		if bar != nil {
			bar.Increment()
		}
	}

	fmt.Fprintf(os.Stderr, "Downloaded %d files to %s (%d failed, %d accessions not found)\n",
		st.Files, dir, st.Failed, st.NotFound)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}

func downloadAccession(ctx context.Context, c *afdb.Client, acc, dir string, genomic bool, st *downloadStats, logger *zap.Logger) {
	log := logger.With(zap.String("accession", acc))

	preds, err := c.Predictions(ctx, acc)
	if err != nil {
		if errors.Is(err, afdb.ErrNotFound) {
			st.NotFound++
		}
		log.Warn("fetching predictions failed", zap.Error(err))
		return
	}

	locs := afdb.Locators(preds[0], genomic)
	names := make([]string, 0, len(locs))
	for name := range locs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := c.Download(ctx, locs[name], dir); err != nil {
			st.Failed++
			log.Warn("download failed",
				zap.String("resource", name),
				zap.String("url", locs[name]),
				zap.Error(err))
			continue
		}
		st.Files++
	}
}
