package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, output schema.OutputMode, name string) *contract.Config {
	t.Helper()
	return &contract.Config{
		Output:     output,
		OutputFile: filepath.Join(t.TempDir(), name),
		Width:      200,
	}
}

func readOutput(t *testing.T, cfg *contract.Config) string {
	t.Helper()
	content, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	return string(content)
}

func sampleReport() schema.Report {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	return schema.Report{
		Run: schema.Run{
			ID: 1, Repo: "acme/widgets", PRNumber: 7, HeadSHA: "abc1234567890",
			StartedAt: started, CompletedAt: &completed,
			ServicesRun: []schema.Source{schema.SourceSARIF, schema.SourceCodacy},
			Status:      schema.RunComplete,
		},
		MinSeverity: schema.SeverityInfo,
		Findings: []schema.Finding{
			{
				ID: 1, RunID: 1, Source: schema.SourceSARIF, Severity: schema.SeverityHigh,
				Path: "a.go", Line: 10, Description: "SQL built from user input, with commas", Category: schema.CategorySecurity,
				RuleID: "G201", DedupKey: "a.go:10", CollectedAt: completed,
			},
			{
				ID: 2, RunID: 1, Source: schema.SourceCodacy, Severity: schema.SeverityLow,
				Description: "missing license file", Category: schema.CategoryGeneral, CollectedAt: completed,
			},
		},
	}
}

func sampleSummary() schema.Summary {
	return schema.Summary{
		Run:        sampleReport().Run,
		Total:      3,
		Unique:     2,
		Duplicates: 1,
		BySource:   map[schema.Source]int{schema.SourceSARIF: 1, schema.SourceCodacy: 1},
		BySeverity: map[schema.Severity]int{schema.SeverityHigh: 1, schema.SeverityLow: 1},
		ByCategory: map[schema.Category]int{schema.CategorySecurity: 1, schema.CategoryGeneral: 1},
		TopFiles:   []schema.FileCount{{Path: "a.go", Count: 1}},
	}
}

func TestWriteReportJSONRoundTrip(t *testing.T) {
	cfg := testConfig(t, schema.JSONOut, "report.json")
	report := sampleReport()
	require.NoError(t, NewOutWriter().WriteReport(report, cfg))

	var decoded schema.Report
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, cfg)), &decoded))
	assert.Equal(t, report, decoded)
}

func TestWriteReportTable(t *testing.T) {
	cfg := testConfig(t, schema.TextOut, "report.txt")
	require.NoError(t, NewOutWriter().WriteReport(sampleReport(), cfg))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "a.go:10")
	assert.Contains(t, out, "(repo)")
	assert.Contains(t, out, "High")
	assert.Contains(t, out, "Showing 2 findings at or above info (run 1, acme/widgets @ abc12345)")
}

func TestWriteReportTableEmpty(t *testing.T) {
	cfg := testConfig(t, schema.TextOut, "empty.txt")
	report := sampleReport()
	report.Findings = nil
	require.NoError(t, NewOutWriter().WriteReport(report, cfg))
	assert.Contains(t, readOutput(t, cfg), "Showing 0 findings")
}

func TestWriteReportCSV(t *testing.T) {
	cfg := testConfig(t, schema.CSVOut, "report.csv")
	require.NoError(t, NewOutWriter().WriteReport(sampleReport(), cfg))

	records, err := csv.NewReader(strings.NewReader(readOutput(t, cfg))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "High", records[1][3])
	assert.Equal(t, "10", records[1][5])
	assert.Equal(t, "SQL built from user input, with commas", records[1][8])
	assert.Empty(t, records[2][5], "repo-wide findings have no line")
}

func TestWriteReportParquet(t *testing.T) {
	cfg := testConfig(t, schema.ParquetOut, "report.parquet")
	require.NoError(t, NewOutWriter().WriteReport(sampleReport(), cfg))

	info, err := os.Stat(cfg.OutputFile)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	cfg.OutputFile = ""
	err = NewOutWriter().WriteReport(sampleReport(), cfg)
	require.Error(t, err)
	assert.True(t, contract.IsUsage(err))
}

func TestWriteSummaryText(t *testing.T) {
	cfg := testConfig(t, schema.TextOut, "summary.txt")
	require.NoError(t, NewOutWriter().WriteSummary(sampleSummary(), cfg))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "Run 1: acme/widgets @ abc12345 (complete)")
	assert.Contains(t, out, "Findings: 3 total, 2 unique, 1 duplicates")
	assert.Contains(t, out, "security")
	assert.Contains(t, out, "a.go")
}

func TestWriteSummaryCSV(t *testing.T) {
	cfg := testConfig(t, schema.CSVOut, "summary.csv")
	require.NoError(t, NewOutWriter().WriteSummary(sampleSummary(), cfg))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "dimension,key,count\n")
	assert.Contains(t, out, "total,duplicates,1\n")
	assert.Contains(t, out, "severity,high,1\n")
	assert.Contains(t, out, "source,codacy,1\n")
	assert.Contains(t, out, "file,a.go,1\n")
}

func TestWriteSummaryRejectsParquet(t *testing.T) {
	cfg := testConfig(t, schema.ParquetOut, "summary.parquet")
	err := NewOutWriter().WriteSummary(sampleSummary(), cfg)
	assert.True(t, contract.IsUsage(err))
}

func TestWriteAuditText(t *testing.T) {
	cfg := testConfig(t, schema.TextOut, "audit.txt")
	result := schema.AuditResult{
		RunID:         1,
		Inserted:      map[schema.Source]int{schema.SourceSARIF: 4},
		Failed:        map[schema.Source]string{schema.SourceCodacy: "codacy collector config error: missing token"},
		DuplicatesNew: 2,
		Summary:       sampleSummary(),
	}
	require.NoError(t, NewOutWriter().WriteAudit(result, cfg))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "sarif")
	assert.Contains(t, out, "failed: codacy collector config error")
	assert.Contains(t, out, "Run 1 sealed, 2 duplicates marked")
	assert.NotContains(t, out, "coderabbit", "sources that did not run are omitted")
}

func TestTaskState(t *testing.T) {
	tests := []struct {
		name     string
		pf       schema.ProcessedFinding
		expected string
	}{
		{"pending", schema.ProcessedFinding{}, "pending"},
		{"false positive wins", schema.ProcessedFinding{IsFalsePositive: true, IsDuplicate: true}, "false-positive"},
		{"duplicate with link", schema.ProcessedFinding{IsDuplicate: true, DuplicateOf: 4}, "duplicate of 4"},
		{"duplicate without link", schema.ProcessedFinding{IsDuplicate: true}, "duplicate"},
		{"task created", schema.ProcessedFinding{TaskCreated: true, TaskID: "t1"}, "task created"},
		{"dispatched", schema.ProcessedFinding{TaskCreated: true, Dispatched: true}, "dispatched"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TaskState(tt.pf))
		})
	}
}

func TestWriteProcessed(t *testing.T) {
	records := []schema.ProcessedFinding{
		{ID: 1, Source: schema.SourceCodeRabbit, SourceID: "review-comment:9", Severity: schema.SeverityCritical, Path: "x.go", Line: 3, Description: "command injection", TaskID: "t1", TaskCreated: true},
		{ID: 2, Source: schema.SourceCodeRabbit, SourceID: "issue-comment:5", Severity: schema.SeverityInfo, Description: "walkthrough", IsFalsePositive: true, FPReason: "walkthrough-only"},
	}

	t.Run("table", func(t *testing.T) {
		cfg := testConfig(t, schema.TextOut, "processed.txt")
		require.NoError(t, NewOutWriter().WriteProcessed(records, cfg))
		out := readOutput(t, cfg)
		assert.Contains(t, out, "x.go:3")
		assert.Contains(t, out, "t1")
		assert.Contains(t, out, "false-positive")
		assert.Contains(t, out, "Showing 2 processed findings")
	})

	t.Run("csv", func(t *testing.T) {
		cfg := testConfig(t, schema.CSVOut, "processed.csv")
		require.NoError(t, NewOutWriter().WriteProcessed(records, cfg))
		rows, err := csv.NewReader(strings.NewReader(readOutput(t, cfg))).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "task created", rows[1][9])
		assert.Equal(t, "walkthrough-only", rows[2][11])
	})
}

func TestWriteTaskLog(t *testing.T) {
	entries := []schema.TaskLogEntry{
		{ID: 1, FindingID: 3, TaskID: "t1", TaskRef: "JIRA-9", Description: "fix path traversal", Severity: schema.SeverityCritical, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	cfg := testConfig(t, schema.TextOut, "log.txt")
	require.NoError(t, NewOutWriter().WriteTaskLog(entries, cfg))
	out := readOutput(t, cfg)
	assert.Contains(t, out, "JIRA-9")
	assert.Contains(t, out, "2026-03-01T00:00:00Z")

	cfg = testConfig(t, schema.JSONOut, "log.json")
	require.NoError(t, NewOutWriter().WriteTaskLog(entries, cfg))
	var decoded []schema.TaskLogEntry
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, cfg)), &decoded))
	assert.Equal(t, entries, decoded)
}

func TestWriteEmit(t *testing.T) {
	cfg := testConfig(t, schema.TextOut, "emit.txt")
	result := schema.EmitResult{Candidates: 3, Created: 2, Failed: 1, TaskIDs: []string{"t1", "t2"}}
	require.NoError(t, NewOutWriter().WriteEmit(result, cfg))
	out := readOutput(t, cfg)
	assert.Contains(t, out, "Candidates: 3, created: 2, failed: 1, skipped: 0, dispatched: 0")
	assert.Contains(t, out, "Task IDs: t1, t2")

	cfg = testConfig(t, schema.TextOut, "dry.txt")
	require.NoError(t, NewOutWriter().WriteEmit(schema.EmitResult{Candidates: 4, DryRun: true}, cfg))
	assert.Equal(t, "Dry run: 4 findings would get a task\n", readOutput(t, cfg))
}

func TestWriteStatus(t *testing.T) {
	report := schema.StatusReport{
		Store: schema.StoreStatus{
			Backend:       "sqlite",
			Connected:     true,
			TotalRuns:     2,
			LastRunID:     2,
			LastRunTime:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			LastRunStatus: schema.RunComplete,
			PendingTasks:  5,
			TableSizes:    map[string]int64{"runs": 2, "findings": 9},
		},
		Checks: []schema.HealthCheck{
			{Name: "store", OK: true, Detail: "sqlite reachable"},
			{Name: "sonarcloud", OK: false, Detail: "sonar-token not set"},
		},
	}
	cfg := testConfig(t, schema.TextOut, "status.txt")
	require.NoError(t, NewOutWriter().WriteStatus(report, cfg))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "Store Backend: sqlite")
	assert.Contains(t, out, "Pending Tasks: 5")
	assert.Less(t, strings.Index(out, "findings: 9 rows"), strings.Index(out, "runs: 2 rows"), "tables are sorted")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "sonar-token not set")
}

func TestTableWidths(t *testing.T) {
	tests := []struct {
		width        int
		expectedPath int
		expectedDesc int
	}{
		{width: 80, expectedPath: 15, expectedDesc: 20},
		{width: 120, expectedPath: 40, expectedDesc: 30},
		{width: 200, expectedPath: 60, expectedDesc: 90},
	}
	for _, tt := range tests {
		cfg := &contract.Config{Width: tt.width}
		assert.Equal(t, tt.expectedPath, GetMaxTablePathWidth(cfg))
		assert.Equal(t, tt.expectedDesc, GetMaxTableDescriptionWidth(cfg))
	}
}
