package cmd

import (
	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/gitinfo"
	"github.com/spf13/cobra"
)

// auditSetup validates the config and resolves which repository and commit
// the run is about before the store is opened.
func auditSetup(_ *cobra.Command, args []string) error {
	if err := loadInput(args); err != nil {
		return err
	}
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	if err := contract.ResolveRepo(rootCtx, cfg, gitinfo.NewInspector(), input); err != nil {
		return err
	}
	return openEnv(rootCtx)
}

// auditCmd runs every configured collector into a new run.
var auditCmd = &cobra.Command{
	Use:   "audit [repo-path]",
	Short: "Collect findings from every configured service into a new run.",
	Long: `Start a run, pull findings from each configured service, merge findings
that different services report on the same line, and seal the run.

A service that fails is reported and skipped; the run still completes with
the services that answered. Credentials come from the environment
(CODEAUDIT_SONAR_TOKEN, CODEAUDIT_CODACY_TOKEN, CODEAUDIT_CODEFACTOR_TOKEN,
CODEAUDIT_GITHUB_TOKEN) or from .codeaudit.yaml.

Examples:
  # Audit the current checkout with every service
  codeaudit audit --pr 42

  # Only read local SARIF output from a scanner
  codeaudit audit --services sarif --sarif-files gosec.sarif,semgrep.sarif

  # Audit and create tasks for the new actionable findings
  codeaudit audit --pr 42 --emit-tasks`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: auditSetup,
	Run:     runExecutor("Cannot run audit", core.ExecuteAudit),
}
