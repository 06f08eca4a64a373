// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docflow CLI. docflow turns
// directories of PDFs into page images and Markdown through resumable
// batch tasks, and splits the resulting Markdown into sections.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/config"
	"github.com/pdiddy/docflow/internal/logging"
	"github.com/pdiddy/docflow/internal/secrets"
	"github.com/pdiddy/docflow/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is decoded from viper before every command runs.
	cfg types.Config

	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	logger = zap.NewNop()
)

// rootCmd is the base command for the docflow CLI.
var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "Resumable PDF to image to Markdown batch conversion",
	Long: `docflow converts directories of PDF files into page images and Markdown.

Work runs as tasks. A task records every input file and its outcome, so an
interrupted or partially failed run can be resumed and only the files that
did not succeed are processed again. Task types:

  pdf_to_image        render each PDF into page_NNN.jpg files
  image_to_markdown   recognize each folder of page images into one .md file
  full_pipeline       both steps for each PDF

The split command cuts the resulting Markdown into sections.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Decode(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		logger = l

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Keys()))
		}
		loadedSecrets.ApplyModelKey(&cfg.Model)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./docflow.yaml or ~/.config/docflow/config.yaml)")
	flags.String("prompts", "prompts.yaml", "prompts file for the recognition model")
	flags.String("secrets-dir", secrets.DefaultDir, "directory holding API key files")
	flags.String("tasks-dir", "", "directory for task records (overrides task_manager.tasks_dir)")
	flags.String("store", "", "task store backend: file, sqlite, or firestore")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("task_manager.tasks_dir", flags.Lookup("tasks-dir"))
	viper.BindPFlag("task_manager.store", flags.Lookup("store"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("docflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "docflow"))
		}
	}

	config.BindEnv(v)

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "reading config %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
