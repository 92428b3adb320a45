package core

import (
	"context"
	"fmt"

	"github.com/huangsam/codeaudit/internal/collector"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// Auditor runs the pipeline for one audit: collectors in order, then
// deduplication, sealing and the summary.
type Auditor struct {
	Env        *Env
	Collectors []contract.Collector
	Emitter    *Emitter // runs after sealing when set
}

// Run executes one audit run. Collector errors are logged and the source is
// left out of services_run. Store and dedup errors are returned and leave
// the run in the running state.
func (a *Auditor) Run(ctx context.Context, cfg *contract.Config) (schema.AuditResult, error) {
	st := a.Env.Store
	log := a.Env.Logger

	if err := a.warnStaleRuns(ctx, cfg); err != nil {
		return schema.AuditResult{}, err
	}

	runID, err := st.BeginRun(ctx, cfg.Repo, cfg.PRNumber, cfg.HeadSHA, a.Env.now())
	if err != nil {
		return schema.AuditResult{}, err
	}
	log.Info("audit run started", "run", runID, "repo", cfg.Repo, "pr", cfg.PRNumber)

	result := schema.AuditResult{
		RunID:    runID,
		Inserted: map[schema.Source]int{},
		Failed:   map[schema.Source]string{},
	}
	rc := contract.RunContext{RunID: runID, Repo: cfg.Repo, PRNumber: cfg.PRNumber, HeadSHA: cfg.HeadSHA}

	servicesRun := []schema.Source{}
	for _, c := range a.Collectors {
		n, err := c.Collect(ctx, rc)
		if ce, ok := collector.AsCollectorError(err); ok {
			log.Warn("collector failed, continuing", "source", c.Source(), "kind", ce.Kind, "error", ce.Err)
			result.Failed[c.Source()] = ce.Error()
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to collect %s findings: %w", c.Source(), err)
		}
		log.Info("collected findings", "source", c.Source(), "count", n)
		result.Inserted[c.Source()] = n
		servicesRun = append(servicesRun, c.Source())
	}

	result.DuplicatesNew, err = Deduplicate(ctx, st, runID)
	if err != nil {
		return result, fmt.Errorf("failed to deduplicate run %d: %w", runID, err)
	}

	if err := st.SealRun(ctx, runID, a.Env.now(), servicesRun); err != nil {
		return result, err
	}

	result.Summary, err = Summarize(ctx, st, runID)
	if err != nil {
		return result, err
	}

	if cfg.Tasks.Emit && a.Emitter != nil {
		emitted, err := a.Emitter.Emit(ctx, EmitOptions{
			MinSeverity: cfg.Tasks.MinSeverity,
			Limit:       cfg.Tasks.Limit,
			DryRun:      cfg.Tasks.DryRun,
		})
		if err != nil {
			log.Warn("task emission failed", "error", err)
		}
		result.TasksEmitted = emitted.Created
	}

	return result, nil
}

// warnStaleRuns logs runs that never reached the sealed state.
func (a *Auditor) warnStaleRuns(ctx context.Context, cfg *contract.Config) error {
	if cfg.StaleAfter <= 0 {
		return nil
	}
	stale, err := a.Env.Store.StaleRuns(ctx, a.Env.now().Add(-cfg.StaleAfter))
	if err != nil {
		return err
	}
	for _, run := range stale {
		a.Env.Logger.Warn("stale run never completed", "run", run.ID, "started", run.StartedAt, "repo", run.Repo)
	}
	return nil
}
