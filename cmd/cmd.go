// Package cmd defines the command-line interface for codeaudit.
package cmd

import (
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the tasks subcommands to the parent tasks command
	tasksCmd.AddCommand(tasksEmitCmd)
	tasksCmd.AddCommand(tasksListCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("backend", string(schema.SQLiteBackend), "Store backend: sqlite or mysql or postgresql")
	rootCmd.PersistentFlags().String("db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("http-timeout", contract.DefaultHTTPTimeout.String(), "Timeout for upstream HTTP calls (0 disables)")
	rootCmd.PersistentFlags().Bool("include-duplicates", false, "Also show findings marked as cross-source duplicates")
	rootCmd.PersistentFlags().IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write diagnostics as JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "Diagnostic level: trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().String("min-severity", "", "Hide findings below this severity: critical, high, medium, low, info")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("run", contract.LatestRunSelector, "Run to show: 'latest' or a run id")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	bindFlags("root", rootCmd.PersistentFlags())

	// Bind all flags of auditCmd to Viper
	auditCmd.Flags().String("repo", "", "Repository as owner/name (defaults to the origin remote)")
	auditCmd.Flags().Int("pr", 0, "Pull request number, required for CodeRabbit")
	auditCmd.Flags().String("head-sha", "", "Commit under audit (defaults to HEAD)")
	auditCmd.Flags().String("services", "", "Comma-separated services: coderabbit, sonarcloud, codacy, codefactor, sarif (default all)")
	auditCmd.Flags().String("sarif-files", "", "Comma-separated SARIF files for the sarif service")
	auditCmd.Flags().Bool("emit-tasks", false, "Run the task emitter after the audit")
	auditCmd.Flags().String("stale-after", contract.DefaultStaleAfter.String(), "Warn about runs still running after this long")
	bindFlags("audit", auditCmd.Flags())

	// Bind all flags of resetCmd to Viper
	resetCmd.Flags().String("backup-dir", "", "Directory for the backup written before purging")
	bindFlags("reset", resetCmd.Flags())

	// Bind all flags of tasksEmitCmd to Viper
	tasksEmitCmd.Flags().String("task-min-severity", string(schema.SeverityMedium), "Lowest severity that gets a task")
	tasksEmitCmd.Flags().Int("task-limit", contract.DefaultTaskLimit, "Maximum tasks created per batch")
	tasksEmitCmd.Flags().Bool("dry-run", false, "Show how many findings would get a task without creating any")
	tasksEmitCmd.Flags().Bool("dispatch", false, "Hand created tasks to task-dispatch-cmd")
	bindFlags("tasks emit", tasksEmitCmd.Flags())

	// Bind all flags of tasksListCmd to Viper
	tasksListCmd.Flags().Bool("actionable", false, "Only findings that are neither false positives nor duplicates")
	tasksListCmd.Flags().Bool("pending", false, "Only actionable findings without a task")
	tasksListCmd.Flags().Bool("task-log", false, "Show the task log instead of findings")
	bindFlags("tasks list", tasksListCmd.Flags())

	// Bind all flags of verifyCmd to Viper
	verifyCmd.Flags().Bool("false-positive", false, "Mark the finding as a false positive")
	verifyCmd.Flags().Bool("valid", false, "Mark the finding as a real issue")
	verifyCmd.Flags().String("by", "", "Who made the call")
	verifyCmd.Flags().String("reason", "", "Why the finding is a false positive")
	bindFlags("verify", verifyCmd.Flags())

	// Bind all flags of migrateCmd to Viper
	migrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	bindFlags("migrate", migrateCmd.Flags())
}

func bindFlags(name string, flags *pflag.FlagSet) {
	if err := viper.BindPFlags(flags); err != nil {
		contract.LogFatal("Error binding "+name+" flags", err)
	}
}
