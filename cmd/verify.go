package cmd

import (
	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/spf13/cobra"
)

// verifySetup validates the finding id and verdict before the store is opened.
func verifySetup(_ *cobra.Command, args []string) error {
	if err := loadInput(nil); err != nil {
		return err
	}
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	if err := contract.ProcessVerify(cfg, input, args); err != nil {
		return err
	}
	return openEnv(rootCtx)
}

// verifyCmd records a manual verdict.
var verifyCmd = &cobra.Command{
	Use:   "verify <finding-id>",
	Short: "Record a manual verdict for a processed finding.",
	Long: `Override the automatic classification of one processed finding and record
who made the call.

A finding that already has a task cannot be marked as a false positive.

Examples:
  codeaudit verify 17 --false-positive --by alice --reason "generated code"
  codeaudit verify 17 --valid --by alice`,
	PreRunE: verifySetup,
	Run:     runExecutor("Cannot verify finding", core.ExecuteVerify),
}
