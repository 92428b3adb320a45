package parquet

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/codeaudit/schema"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRuns() []schema.Run {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Minute)
	return []schema.Run{
		{
			ID: 1, Repo: "acme/widgets", PRNumber: 7, HeadSHA: "abc123",
			StartedAt: started, CompletedAt: &completed,
			ServicesRun: []schema.Source{schema.SourceCodeRabbit, schema.SourceSARIF},
			Status:      schema.RunComplete,
		},
		{
			ID: 2, Repo: "acme/widgets", HeadSHA: "def456",
			StartedAt: started.Add(time.Hour), Status: schema.RunRunning,
		},
	}
}

func sampleFindings() []schema.Finding {
	at := time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)
	return []schema.Finding{
		{
			ID: 1, RunID: 1, Source: schema.SourceSARIF, Severity: schema.SeverityHigh,
			Path: "a.go", Line: 10, Description: "unchecked error", Category: schema.CategoryBug,
			RuleID: "G104", DedupKey: "a.go:10", CollectedAt: at,
		},
		{
			ID: 2, RunID: 1, Source: schema.SourceCodacy, Severity: schema.SeverityLow,
			Description: "repo-wide", Category: schema.CategoryGeneral, CollectedAt: at,
		},
	}
}

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[T](file)
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		schema  *parquet.Schema
		columns []string
	}{
		{"runs", parquet.SchemaOf(new(AuditRun)), []string{"run_id", "repo", "pr_number", "head_sha", "started_at", "completed_at", "services_run", "status"}},
		{"findings", parquet.SchemaOf(new(AuditFinding)), []string{"finding_id", "run_id", "source", "severity", "path", "line", "description", "category", "rule_id", "dedup_key", "is_duplicate", "collected_at"}},
		{"processed", parquet.SchemaOf(new(ProcessedFinding)), []string{"finding_id", "source", "source_id", "severity", "is_false_positive", "task_id", "task_created", "dispatched"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, col := range tt.columns {
				_, ok := tt.schema.Lookup(col)
				assert.True(t, ok, "column %s should exist", col)
			}
		})
	}
}

func TestWriteRunsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "runs.parquet")
	data := ConvertRuns(sampleRuns())
	require.NoError(t, WriteRunsParquet(data, outputPath))

	got := readAll[AuditRun](t, outputPath)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].RunID)
	assert.Equal(t, "coderabbit,sarif", got[0].ServicesRun)
	require.NotNil(t, got[0].CompletedAt)
	assert.WithinDuration(t, *data[0].CompletedAt, *got[0].CompletedAt, time.Nanosecond)
	assert.Nil(t, got[1].CompletedAt, "running runs have no completion time")
	assert.Equal(t, "running", got[1].Status)
}

func TestWriteFindingsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "findings.parquet")
	require.NoError(t, WriteFindingsParquet(ConvertFindings(sampleFindings()), outputPath))

	got := readAll[AuditFinding](t, outputPath)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Path)
	assert.Equal(t, "a.go", *got[0].Path)
	require.NotNil(t, got[0].Line)
	assert.Equal(t, int32(10), *got[0].Line)
	assert.Equal(t, "high", got[0].Severity)

	assert.Nil(t, got[1].Path, "repo-wide findings have a null path")
	assert.Nil(t, got[1].Line)
	assert.Nil(t, got[1].DedupKey)
}

func TestWriteProcessedParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "processed.parquet")
	records := []schema.ProcessedFinding{
		{ID: 1, Source: schema.SourceCodeRabbit, SourceID: "review-comment:1", Severity: schema.SeverityHigh, TaskID: "t1", TaskCreated: true},
		{ID: 2, Source: schema.SourceCodeRabbit, SourceID: "issue-comment:2", IsFalsePositive: true, FPReason: "walkthrough"},
	}
	require.NoError(t, WriteProcessedParquet(ConvertProcessed(records), outputPath))

	got := readAll[ProcessedFinding](t, outputPath)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].TaskID)
	assert.Equal(t, "t1", *got[0].TaskID)
	assert.Nil(t, got[1].TaskID)
	assert.True(t, got[1].IsFalsePositive)
}

func TestWriteParquetEmptyData(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteFindingsParquet([]AuditFinding{}, outputPath))

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0), "file should contain the schema even if empty")
}

func TestWriteParquetInvalidPath(t *testing.T) {
	err := WriteRunsParquet(ConvertRuns(sampleRuns()), "/nonexistent/directory/output.parquet")
	require.Error(t, err)
}
