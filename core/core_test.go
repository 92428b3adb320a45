package core

import (
	"context"
	"testing"
	"time"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/huangsam/codeaudit/schema"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) (*Env, *store.SQLStore) {
	t.Helper()
	st, err := store.Open(context.Background(), schema.SQLiteBackend, store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	st.SetClock(func() time.Time { return testNow })

	env := NewEnv(st, logger.Discard())
	env.Now = func() time.Time { return testNow }
	return env, st
}

func beginRun(t *testing.T, st contract.RunStore) int64 {
	t.Helper()
	id, err := st.BeginRun(context.Background(), "acme/widgets", 7, "abc123", testNow)
	require.NoError(t, err)
	return id
}

func insertFindings(t *testing.T, st contract.FindingStore, findings ...schema.NewFinding) []int64 {
	t.Helper()
	ids := make([]int64, len(findings))
	for i, f := range findings {
		id, err := st.InsertFinding(context.Background(), f)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func allFindings(t *testing.T, st contract.FindingStore, runID int64) []schema.Finding {
	t.Helper()
	findings, err := st.ListFindings(context.Background(), schema.FindingFilter{RunID: runID, IncludeDuplicates: true})
	require.NoError(t, err)
	return findings
}

func duplicateFlags(findings []schema.Finding) map[int64]bool {
	flags := make(map[int64]bool, len(findings))
	for _, f := range findings {
		flags[f.ID] = f.IsDuplicate
	}
	return flags
}

func upsertProcessed(t *testing.T, st contract.TaskStore, sourceID string, sev schema.Severity, desc string) int64 {
	t.Helper()
	id, inserted, err := st.UpsertProcessed(context.Background(), schema.NewProcessedFinding{
		Source:           schema.SourceCodeRabbit,
		SourceID:         sourceID,
		PRNumber:         7,
		Path:             "x.go",
		Line:             1,
		Severity:         sev,
		OriginalSeverity: sev,
		Category:         schema.CategoryBug,
		Description:      desc,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

// fakeCollector stands in for an upstream service.
type fakeCollector struct {
	source  schema.Source
	collect func(ctx context.Context, rc contract.RunContext) (int, error)
}

func (f *fakeCollector) Source() schema.Source { return f.source }

func (f *fakeCollector) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	return f.collect(ctx, rc)
}

// inserting returns a collector that stores the given findings into the run.
func inserting(src schema.Source, st contract.FindingStore, findings ...schema.NewFinding) *fakeCollector {
	return &fakeCollector{source: src, collect: func(ctx context.Context, rc contract.RunContext) (int, error) {
		for _, f := range findings {
			f.RunID = rc.RunID
			f.Source = src
			if _, err := st.InsertFinding(ctx, f); err != nil {
				return 0, err
			}
		}
		return len(findings), nil
	}}
}
