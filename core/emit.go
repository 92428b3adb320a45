package core

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/internal/tasks"
	"github.com/huangsam/codeaudit/schema"
)

// EmitOptions controls one emitter batch.
type EmitOptions struct {
	MinSeverity schema.Severity
	Limit       int // 0 means every candidate
	DryRun      bool
}

// Emitter turns actionable processed findings into tasks. A finding gets at
// most one task: the mark is guarded in the store, so a rerun after an
// interrupted batch only sees the findings that were never marked.
type Emitter struct {
	Store      contract.TaskStore
	Allocator  contract.TaskAllocator
	Dispatcher contract.TaskDispatcher // optional
	Logger     hclog.Logger
	Now        func() time.Time
}

// Emit runs one batch. Allocator and dispatcher failures are logged and
// counted; store failures are returned.
func (e *Emitter) Emit(ctx context.Context, opts EmitOptions) (schema.EmitResult, error) {
	log := e.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := e.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	result := schema.EmitResult{DryRun: opts.DryRun, TaskIDs: []string{}}
	candidates, err := e.Store.TaskCandidates(ctx, opts.MinSeverity, opts.Limit)
	if err != nil {
		return result, err
	}
	result.Candidates = len(candidates)

	if opts.DryRun {
		for _, pf := range candidates {
			log.Info("would create task", "finding", pf.ID, "severity", pf.Severity, "description", pf.Description)
		}
		return result, nil
	}

	for _, pf := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		claim, err := e.Allocator.Claim(ctx, pf)
		if err != nil {
			log.Warn("task allocation failed", "finding", pf.ID, "error", err)
			result.Failed++
			continue
		}

		marked, err := e.Store.MarkTaskCreated(ctx, schema.TaskMark{
			FindingID:   pf.ID,
			TaskID:      claim.ID,
			TaskRef:     claim.Ref,
			Description: pf.Description,
			Severity:    pf.Severity,
			CreatedAt:   now(),
		})
		if err != nil {
			return result, err
		}
		if !marked {
			log.Warn("finding already has a task, claim discarded", "finding", pf.ID, "task", claim.ID)
			result.Skipped++
			continue
		}

		log.Debug("task created", "finding", pf.ID, "task", claim.ID)
		result.Created++
		result.TaskIDs = append(result.TaskIDs, claim.ID)
	}

	if e.Dispatcher == nil || len(result.TaskIDs) == 0 {
		return result, nil
	}
	if err := e.Dispatcher.Dispatch(ctx, result.TaskIDs); err != nil {
		log.Warn("task dispatch failed", "tasks", len(result.TaskIDs), "error", err)
		return result, nil
	}
	if err := e.Store.MarkDispatched(ctx, result.TaskIDs); err != nil {
		return result, err
	}
	result.Dispatched = len(result.TaskIDs)
	return result, nil
}

// NewEmitter wires the configured allocator and dispatcher to the store.
func NewEmitter(cfg *contract.Config, env *Env) (*Emitter, error) {
	allocator, err := tasks.NewAllocator(cfg.Tasks, env.Store)
	if err != nil {
		return nil, err
	}
	return &Emitter{
		Store:      env.Store,
		Allocator:  allocator,
		Dispatcher: tasks.NewDispatcher(cfg.Tasks),
		Logger:     env.Logger.Named("tasks"),
		Now:        env.now,
	}, nil
}
