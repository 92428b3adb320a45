package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangsam/codeaudit/internal/collector"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/outwriter"
	"github.com/huangsam/codeaudit/internal/parquet"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/huangsam/codeaudit/schema"
)

// ExecuteAudit runs the collectors for the configured services, seals the
// run and prints its outcome. It serves as the main entry point for 'audit'.
func ExecuteAudit(ctx context.Context, cfg *contract.Config, env *Env) error {
	collectors, err := collector.New(cfg, env.Store, env.Logger)
	if err != nil {
		return err
	}
	auditor := &Auditor{Env: env, Collectors: collectors}
	if cfg.Tasks.Emit {
		if auditor.Emitter, err = NewEmitter(cfg, env); err != nil {
			return err
		}
	}
	result, err := auditor.Run(ctx, cfg)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteAudit(result, cfg)
}

// ExecuteReport prints the findings of the selected run.
func ExecuteReport(ctx context.Context, cfg *contract.Config, env *Env) error {
	report, err := BuildReport(ctx, env.Store, cfg)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteReport(report, cfg)
}

// ExecuteSummary prints the aggregate counts of the selected run.
func ExecuteSummary(ctx context.Context, cfg *contract.Config, env *Env) error {
	run, err := ResolveRun(ctx, env.Store, cfg.RunID)
	if err != nil {
		return err
	}
	summary, err := Summarize(ctx, env.Store, run.ID)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteSummary(summary, cfg)
}

// ExecuteStatus prints the store status and the dependency checks.
func ExecuteStatus(ctx context.Context, cfg *contract.Config, env *Env) error {
	return outwriter.NewOutWriter().WriteStatus(BuildStatus(ctx, cfg, env), cfg)
}

// ExecuteReset writes a compressed backup of every relation, then purges them.
func ExecuteReset(ctx context.Context, cfg *contract.Config, env *Env) error {
	dir := cfg.BackupDir
	if dir == "" {
		dir = store.DefaultBackupDir(cfg.Backend, cfg.DBConnect)
	}
	path, err := store.BackupAndPurge(ctx, env.Store, dir)
	if err != nil {
		return err
	}
	fmt.Printf("Backup written to %s\n", path)
	fmt.Println("Store purged successfully.")
	return nil
}

// ExecuteTasksEmit runs one Task Emitter batch and prints its counters.
func ExecuteTasksEmit(ctx context.Context, cfg *contract.Config, env *Env) error {
	emitter, err := NewEmitter(cfg, env)
	if err != nil {
		return err
	}
	result, emitErr := emitter.Emit(ctx, EmitOptions{
		MinSeverity: cfg.Tasks.MinSeverity,
		Limit:       cfg.Tasks.Limit,
		DryRun:      cfg.Tasks.DryRun,
	})
	// Tasks created before a store failure are still reported
	if err := outwriter.NewOutWriter().WriteEmit(result, cfg); err != nil {
		return err
	}
	return emitErr
}

// ExecuteTasksList prints processed findings with their task state, or the task log.
func ExecuteTasksList(ctx context.Context, cfg *contract.Config, env *Env) error {
	ow := outwriter.NewOutWriter()
	if cfg.Tasks.ShowLog {
		entries, err := env.Store.ListTaskLog(ctx, cfg.ResultLimit)
		if err != nil {
			return err
		}
		return ow.WriteTaskLog(entries, cfg)
	}
	records, err := env.Store.ListProcessed(ctx, schema.ProcessedFilter{
		MinSeverity:     cfg.MinSeverity,
		OnlyActionable:  cfg.Tasks.OnlyActionable,
		OnlyWithoutTask: cfg.Tasks.OnlyWithoutTask,
		Limit:           cfg.ResultLimit,
	})
	if err != nil {
		return err
	}
	return ow.WriteProcessed(records, cfg)
}

// ExecuteVerify records a manual verdict for one processed finding.
func ExecuteVerify(ctx context.Context, cfg *contract.Config, env *Env) error {
	v := cfg.Verify
	err := env.Store.Verify(ctx, schema.Verification{
		FindingID:     v.FindingID,
		FalsePositive: v.FalsePositive,
		Reason:        v.Reason,
		VerifiedBy:    v.VerifiedBy,
		VerifiedAt:    env.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("processed finding %d does not exist: %w", v.FindingID, err)
	}
	if err != nil {
		return err
	}
	verdict := "valid"
	if v.FalsePositive {
		verdict = "false positive"
	}
	fmt.Printf("Finding %d marked %s by %s\n", v.FindingID, verdict, v.VerifiedBy)
	return nil
}

// ExecuteExport writes every run, finding and processed finding to Parquet
// files named after the --output-file prefix.
func ExecuteExport(ctx context.Context, cfg *contract.Config, env *Env) error {
	if cfg.OutputFile == "" {
		return contract.UsageErrorf("--output-file is required for export command")
	}
	snap, err := env.Store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}
	if len(snap.Runs) == 0 && len(snap.ProcessedFindings) == 0 {
		return errors.New("no audit data found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", env.Store.Backend())

	runsFile := cfg.OutputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRuns(snap.Runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(snap.Runs), runsFile)

	findingsFile := cfg.OutputFile + ".findings.parquet"
	if err := parquet.WriteFindingsParquet(parquet.ConvertFindings(snap.Findings), findingsFile); err != nil {
		return fmt.Errorf("failed to write findings: %w", err)
	}
	fmt.Printf("Exported %d findings to: %s\n", len(snap.Findings), findingsFile)

	processedFile := cfg.OutputFile + ".processed_findings.parquet"
	if err := parquet.WriteProcessedParquet(parquet.ConvertProcessed(snap.ProcessedFindings), processedFile); err != nil {
		return fmt.Errorf("failed to write processed findings: %w", err)
	}
	fmt.Printf("Exported %d processed findings to: %s\n", len(snap.ProcessedFindings), processedFile)
	return nil
}
