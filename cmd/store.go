package cmd

import (
	"os"

	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// statusCmd checks the store and every configured dependency.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the store and every configured service.",
	Long: `Show store statistics and whether each configured service, the task
allocator and the task dispatcher can be used.

Failed checks are listed but do not change the exit code.

Examples:
  codeaudit status
  CODEAUDIT_BACKEND=postgresql CODEAUDIT_DB_CONNECT="host=... dbname=..." codeaudit status`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot check status", core.ExecuteStatus),
}

// resetCmd backs up and purges the store.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Back up every table, then delete all stored data.",
	Long: `Write a zstd-compressed JSON snapshot of runs, findings, processed findings
and the task log, then purge them. Nothing is deleted if the backup fails.

Backups go next to the SQLite file, or to the working directory for
MySQL and PostgreSQL, unless --backup-dir is set.

Examples:
  codeaudit reset
  codeaudit reset --backup-dir /var/backups/codeaudit`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot reset store", core.ExecuteReset),
}

// exportCmd writes the store to Parquet files.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs and findings to Parquet files.",
	Long: `Write every run, finding and processed finding to Parquet files named
after the --output-file prefix:

  <prefix>.runs.parquet
  <prefix>.findings.parquet
  <prefix>.processed_findings.parquet

Examples:
  # Load into DuckDB or pandas afterwards
  codeaudit export --output-file audit-data`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot export store", core.ExecuteExport),
}

// migrateSetup validates the config without opening the store, so
// migrations can run against a fresh or older database.
func migrateSetup(_ *cobra.Command, args []string) error {
	if err := loadInput(args); err != nil {
		return err
	}
	return contract.ProcessAndValidate(cfg, input)
}

// migrateCmd runs schema migrations.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run store schema migrations.",
	Long: `Migrate the store schema up to the latest version, or to --target-version.

Every other command migrates to the latest version automatically; use this
to roll back or to prepare a database ahead of a deploy.

Examples:
  codeaudit migrate
  codeaudit migrate --target-version 0`,
	Args:    cobra.NoArgs,
	PreRunE: migrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		err := store.Migrate(cfg.Backend, cfg.DBConnect, viper.GetInt("target-version"), os.Stdout)
		if err != nil {
			contract.LogFatal("Cannot migrate store", err)
		}
	},
}
