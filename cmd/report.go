package cmd

import (
	"github.com/huangsam/codeaudit/core"
	"github.com/spf13/cobra"
)

// reportCmd lists the findings of one run.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the findings of a run, most severe first.",
	Long: `List the findings of the latest complete run, or of the run picked with --run.

Duplicates are hidden unless --include-duplicates is set. The JSON form
holds every stored field and can be read back by other tools.

Examples:
  # High and critical findings of the latest run
  codeaudit report --min-severity high

  # Everything from run 12 as CSV
  codeaudit report --run 12 --include-duplicates --output csv --output-file run12.csv

  # Parquet for analytics
  codeaudit report --output parquet --output-file findings.parquet`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot build report", core.ExecuteReport),
}

// summaryCmd shows aggregate counts of one run.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count the findings of a run by source, severity, category and file.",
	Long: `Show totals for the latest complete run, or the run picked with --run.

Breakdowns count unique findings; duplicates are reported as one total.

Examples:
  codeaudit summary
  codeaudit summary --run 12 --output json`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot build summary", core.ExecuteSummary),
}
