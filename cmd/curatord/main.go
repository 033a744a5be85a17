// Package main implements the curatord CLI: scoring runs, experiment
// reports, and feedback operations against the local curator state.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "curatord",
	Short: "LLM-scored feed curation",
	Long: `curatord scores candidate feed items with an LLM judge, applies
per-author tier thresholds, and records paired scores for prompt
experiments. Feedback commands maintain the vote corpus that retrieval-
aware strategies learn from.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/curator/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(authorCmd)
}
