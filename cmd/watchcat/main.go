// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the watchcat CLI.
// Implements: pull cycles over configured sources, checkpoint inspection,
// and stored-record listing.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/watchcat/internal/config"
	"github.com/pdiddy/watchcat/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg holds the configuration loaded before every command except version.
var cfg *config.Config

// rootCmd is the base command for the watchcat CLI.
var rootCmd = &cobra.Command{
	Use:   "watchcat",
	Short: "Pull papers and mail into normalized, deduplicated records",
	Long: `watchcat pulls items from configured sources (arXiv feeds, IMAP and POP3
mailboxes), normalizes them into records, applies each source's filter, and
drops anything already seen. Progress is checkpointed per source so repeated
runs only deliver new items.

Sources and their filters are declared in watchcat.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Get().Debug().Str("file", used).Msg("using config file")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./watchcat.yaml or ~/.config/watchcat/watchcat.yaml)")
	rootCmd.PersistentFlags().String("db", "", "checkpoint database path (overrides store.path)")
	viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("watchcat")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "watchcat"))
		}
	}

	viper.SetEnvPrefix("WATCHCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{"log.level", "log.format", "store.path", "secrets_dir"} {
		viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			fmt.Fprintln(os.Stderr, "warning: reading config:", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
