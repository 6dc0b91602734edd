// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the redmine-reformat CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dmakurin/redmine-reformat/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from the secrets directory at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the redmine-reformat CLI.
var rootCmd = &cobra.Command{
	Use:   "redmine-reformat",
	Short: "Convert Redmine rich-text fields between markup formats",
	Long: `redmine-reformat rewrites the rich-text fields of a Redmine database, for
example from Textile to Markdown. A JSON converter configuration binds each
record type and field to a chain of converters; the convert command pages
through the database and writes every converted field back one record per
transaction.

Fields that fail to convert keep their original text and are listed in the
run report. Re-running a batch skips fields that a previous run already
converted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(viper.GetString("secrets_dir"))
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./redmine-reformat.yaml or ~/.config/redmine-reformat/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log encoding: console or json")
	pf.String("secrets-dir", ".secrets/", "directory of secret files expanded into the DSN")

	bindFlags(pf, map[string]string{
		"log.level":    "log-level",
		"log.encoding": "log-format",
		"secrets_dir":  "secrets-dir",
	})
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("redmine-reformat")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "redmine-reformat"))
		}
	}

	setDefaults()
	viper.SetEnvPrefix("REDMINE_REFORMAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds config keys to flags of one flag set. Commands bind
// their own flags when they run, so flags with the same name on different
// commands do not shadow each other.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			viper.BindPFlag(key, f)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
