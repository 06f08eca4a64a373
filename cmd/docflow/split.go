// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docflow/internal/split"
)

var splitCmd = &cobra.Command{
	Use:   "split <markdown file or directory>",
	Short: "Split Markdown documents into section files",
	Long: `Split cuts each Markdown file into sections and writes them as
<name>_<NNN>_<title>.md next to a <name>_metadata.json index.

Methods: headers splits at headings up to --max-header-level; length packs
paragraphs up to --max-chars; auto uses headers and falls back to length
when that yields fewer than 2 or more than 50 sections. Sections shorter
than --min-chars are merged into the next one.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().String("output", "", "output directory (default: <input dir>/split)")
	splitCmd.Flags().String("method", "", "split method: auto, headers, or length")
	splitCmd.Flags().Int("max-chars", 0, "maximum characters per section for length split")
	splitCmd.Flags().Int("min-chars", 0, "merge sections shorter than this")
	splitCmd.Flags().Int("max-header-level", 0, "deepest heading level that starts a section")

	viper.BindPFlag("split.method", splitCmd.Flags().Lookup("method"))
	viper.BindPFlag("split.max_chars", splitCmd.Flags().Lookup("max-chars"))
	viper.BindPFlag("split.min_chars", splitCmd.Flags().Lookup("min-chars"))
	viper.BindPFlag("split.max_header_level", splitCmd.Flags().Lookup("max-header-level"))

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	ctx, stop := signalContext()
	defer stop()
	files, outDir, err := split.Inputs(ctx, args[0], output)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no Markdown files under %s", args[0])
	}
	fmt.Fprintf(os.Stdout, "Splitting %d file(s) into %s (method %s)\n\n", len(files), outDir, cfg.Split.Method)

	s := split.New(cfg.Split, logger)
	var failed int
	for _, f := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		meta, err := s.File(f, outDir)
		if err != nil {
			fmt.Fprintf(os.Stdout, "failed  %s: %v\n", f, err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stdout, "ok      %s: %d section(s)\n", f, meta.TotalSections)
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to split", failed)
	}
	return nil
}
