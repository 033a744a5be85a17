package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/curator/internal/experiment"
)

var reportCmd = &cobra.Command{
	Use:   "report <experiment-id>",
	Short: "Analyze an experiment's paired scores against feedback",
	Long: `Join an experiment's recorded control/challenger pairs with the
active votes and print score gaps, precision/recall at the configured
threshold, the Wilcoxon signed-rank result, and a recommendation.

Examples:
  curatord report exp-2025-06`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	analyzer := experiment.NewAnalyzer(a.store, a.config.Analyzer, a.logger)
	report, err := analyzer.Analyze(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), report.String())
	return nil
}
