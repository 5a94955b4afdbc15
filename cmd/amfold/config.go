package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/amfold/internal/annotate"
	"github.com/inodb/amfold/internal/datasource/alphamissense"
)

// Configuration keys.
const (
	keyOutputDir     = "output.dir"
	keyDownloadDir   = "download.dir"
	keyStorePath     = "store.path"
	keyAPIBaseURL    = "api.base_url"
	keyAPITimeout    = "api.timeout"
	keyAPIRetries    = "api.retries"
	keyAPIRetryDelay = "api.retry_delay"
	keyIDColumn      = "variant.id_column"
	keyScoreColumn   = "variant.score_column"
	keyStrict        = "annotate.strict"
	keyPlots         = "plots.enabled"
)

const configName = ".amfold.yaml"

// initConfig loads ~/.amfold.yaml and AMFOLD_* environment overrides.
func initConfig(cfgFile string) error {
	viper.SetDefault(keyOutputDir, annotate.DefaultOutputDir)
	viper.SetDefault(keyDownloadDir, "downloaded_files")
	viper.SetDefault(keyAPIBaseURL, "https://alphafold.ebi.ac.uk/api")
	viper.SetDefault(keyAPITimeout, 30*time.Second)
	viper.SetDefault(keyAPIRetries, 3)
	viper.SetDefault(keyAPIRetryDelay, 5*time.Second)
	viper.SetDefault(keyIDColumn, alphamissense.ColProteinVariant)
	viper.SetDefault(keyScoreColumn, alphamissense.ColAMPathogenicity)
	viper.SetDefault(keyStrict, true)
	viper.SetDefault(keyPlots, true)

	viper.SetEnvPrefix("AMFOLD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".amfold")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if cfgFile == "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage amfold configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.amfold.yaml.",
		Example: `  amfold config                             # show all config
  amfold config set store.path scores.duckdb  # persist residue scores
  amfold config get output.dir              # get a value`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigShow() error {
	settings := viper.AllSettings()
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# Config file: %s\n", used)
	} else {
		fmt.Printf("# No config file. Defaults shown; set values are saved to ~/%s\n", configName)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigSet(key, value string) error {
	// Parse boolean-like values
	switch value {
	case "true", "yes", "on":
		viper.Set(key, true)
	case "false", "no", "off":
		viper.Set(key, false)
	default:
		viper.Set(key, value)
	}

	// Ensure config file exists
	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, configName)
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Println(val)
	return nil
}
