package cmd

import (
	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/spf13/cobra"
)

// tasksEmitSetup lets the shared --min-severity and --limit flags stand in
// for the task-specific ones.
func tasksEmitSetup(cmd *cobra.Command, args []string) error {
	if err := loadInput(args); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("min-severity") && !flags.Changed("task-min-severity") {
		input.TaskMinSeverity = input.MinSeverity
	}
	if flags.Changed("limit") && !flags.Changed("task-limit") {
		input.TaskLimit = input.Limit
	}
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	return openEnv(rootCtx)
}

// tasksCmd groups the task emitter commands.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Turn actionable review-bot findings into tracked tasks",
	Long: `Manage the tasks created from processed CodeRabbit findings.

Each finding gets at most one task, even when a batch is interrupted and
run again.

Subcommands:
  emit - Create tasks for actionable findings without one
  list - Show processed findings with their task state`,
}

// tasksEmitCmd runs one emitter batch.
var tasksEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Create tasks for actionable findings that have none yet",
	Long: `Claim a task id for each actionable finding at or above the task severity,
most severe first, and record it. With --dispatch, hand the created tasks
to task-dispatch-cmd.

Task ids come from task-allocator-cmd when set, otherwise from a local
sequence (t1, t2, ...).

Examples:
  codeaudit tasks emit --dry-run
  codeaudit tasks emit --task-min-severity high --task-limit 5 --dispatch`,
	Args:    cobra.NoArgs,
	PreRunE: tasksEmitSetup,
	Run:     runExecutor("Cannot emit tasks", core.ExecuteTasksEmit),
}

// tasksListCmd shows processed findings or the task log.
var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show processed findings with their task state",
	Long: `List processed findings, most severe first, with their classification and
task state. --task-log shows the append-only task log instead.

Examples:
  codeaudit tasks list --pending
  codeaudit tasks list --task-log --output csv`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("Cannot list tasks", core.ExecuteTasksList),
}
