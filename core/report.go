package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/huangsam/codeaudit/schema"
)

// topFilesLimit bounds the per-file breakdown of a summary.
const topFilesLimit = 10

// ResolveRun returns the selected run, or the latest complete run when runID is 0.
func ResolveRun(ctx context.Context, st contract.RunStore, runID int64) (schema.Run, error) {
	if runID > 0 {
		run, err := st.GetRun(ctx, runID)
		if errors.Is(err, store.ErrNotFound) {
			return schema.Run{}, fmt.Errorf("run %d does not exist: %w", runID, err)
		}
		return run, err
	}
	run, err := st.LatestRun(ctx, true)
	if errors.Is(err, store.ErrNotFound) {
		return schema.Run{}, fmt.Errorf("no complete run found, run 'codeaudit audit' first: %w", err)
	}
	return run, err
}

// BuildReport collects the findings of the selected run, most severe first.
func BuildReport(ctx context.Context, st contract.Store, cfg *contract.Config) (schema.Report, error) {
	run, err := ResolveRun(ctx, st, cfg.RunID)
	if err != nil {
		return schema.Report{}, err
	}
	findings, err := st.ListFindings(ctx, schema.FindingFilter{
		RunID:             run.ID,
		MinSeverity:       cfg.MinSeverity,
		IncludeDuplicates: cfg.IncludeDuplicates,
		Limit:             cfg.ResultLimit,
	})
	if err != nil {
		return schema.Report{}, err
	}
	minimum := cfg.MinSeverity
	if minimum == "" {
		minimum = schema.SeverityInfo
	}
	return schema.Report{Run: run, MinSeverity: minimum, Findings: findings}, nil
}

// Summarize counts a run's findings. The breakdowns cover unique findings
// only; duplicates are counted once in Duplicates.
func Summarize(ctx context.Context, st contract.Store, runID int64) (schema.Summary, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return schema.Summary{}, err
	}
	findings, err := st.ListFindings(ctx, schema.FindingFilter{RunID: runID, IncludeDuplicates: true})
	if err != nil {
		return schema.Summary{}, err
	}

	summary := schema.Summary{
		Run:        run,
		Total:      len(findings),
		BySource:   map[schema.Source]int{},
		BySeverity: map[schema.Severity]int{},
		ByCategory: map[schema.Category]int{},
		TopFiles:   []schema.FileCount{},
	}
	perFile := map[string]int{}
	for _, f := range findings {
		if f.IsDuplicate {
			summary.Duplicates++
			continue
		}
		summary.Unique++
		summary.BySource[f.Source]++
		summary.BySeverity[f.Severity]++
		summary.ByCategory[f.Category]++
		if f.Path != "" {
			perFile[f.Path]++
		}
	}

	for path, count := range perFile {
		summary.TopFiles = append(summary.TopFiles, schema.FileCount{Path: path, Count: count})
	}
	sort.Slice(summary.TopFiles, func(i, j int) bool {
		if summary.TopFiles[i].Count != summary.TopFiles[j].Count {
			return summary.TopFiles[i].Count > summary.TopFiles[j].Count
		}
		return summary.TopFiles[i].Path < summary.TopFiles[j].Path
	})
	if len(summary.TopFiles) > topFilesLimit {
		summary.TopFiles = summary.TopFiles[:topFilesLimit]
	}
	return summary, nil
}
