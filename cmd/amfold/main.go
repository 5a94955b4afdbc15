// Package main provides the amfold command-line tool.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/amfold/internal/annotate"
	"github.com/inodb/amfold/internal/datasource/afdb"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "Run 'amfold --help' for usage.\n")
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

// usageError marks command-line misuse so run can exit with ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	root := &cobra.Command{
		Use:   "amfold",
		Short: "AlphaMissense scores on AlphaFold structures",
		Long: `amfold fetches AlphaFold DB predictions for UniProt accessions, averages
the AlphaMissense pathogenicity of every residue and writes the averages into
the B-factor column of the predicted structure.`,
		Example: `  # Annotate the proteins listed in ids.txt
  amfold run ids.txt

  # Download every AFDB resource for the same proteins
  amfold download --extract-am-files ids.txt

  # Look up a stored residue score
  amfold query P04637 175`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/"+configName+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	logger := func() *zap.Logger { return newLogger(os.Stderr, verbose) }

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newDownloadCmd(logger))
	root.AddCommand(newQueryCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("amfold version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// newLogger builds a console logger writing to w at info level, or debug
// when verbose is set.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// bindFlags binds config keys to the flags of the running command. Binding
// happens at run time because several commands share a key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// newClient builds the AFDB client from configuration.
func newClient(logger *zap.Logger) *afdb.Client {
	c := afdb.NewClient()
	c.SetBaseURL(viper.GetString(keyAPIBaseURL))
	c.SetTimeout(viper.GetDuration(keyAPITimeout))
	c.SetRetry(viper.GetInt(keyAPIRetries), viper.GetDuration(keyAPIRetryDelay))
	c.SetLogger(logger)
	return c
}

// readAccessions reads accessions from path, or stdin when path is "-".
func readAccessions(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	ids, err := annotate.ReadAccessions(r)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no accessions in %s", path)
	}
	return ids, nil
}
