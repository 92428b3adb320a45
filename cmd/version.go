package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionCmd prints build info, mostly for bug reports against a collector run.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the codeaudit build that collects and reports findings.",
	Long: `Print the codeaudit release, commit and build time.

Include this output when reporting a collector or store problem, since
finding mappings and migrations change between releases.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("codeaudit CLI\n")
		cmd.Printf("  Version: %s\n", version)
		cmd.Printf("  Commit:  %s\n", commit)
		cmd.Printf("  Built:   %s\n", date)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
	},
}
