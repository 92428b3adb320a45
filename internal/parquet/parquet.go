// Package parquet provides data structures and functions for exporting audit
// runs and findings to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huangsam/codeaudit/schema"
	"github.com/parquet-go/parquet-go"
)

// AuditRun represents a single audit run with metadata.
// This struct maps to the runs table.
type AuditRun struct {
	// RunID is the unique identifier for this run
	RunID int64 `parquet:"run_id,snappy"`

	Repo     string `parquet:"repo,snappy"`
	PRNumber int32  `parquet:"pr_number,snappy"`
	HeadSHA  string `parquet:"head_sha,snappy"`

	// StartedAt is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartedAt time.Time `parquet:"started_at,snappy"`

	// CompletedAt is nil while the run is still running
	CompletedAt *time.Time `parquet:"completed_at,optional,snappy"`

	// ServicesRun is the comma-separated list of sources that succeeded
	ServicesRun string `parquet:"services_run,snappy"`

	Status string `parquet:"status,snappy"`
}

// AuditFinding represents one normalized finding of a run.
// This struct maps to the findings table.
type AuditFinding struct {
	FindingID   int64     `parquet:"finding_id,snappy"`
	RunID       int64     `parquet:"run_id,snappy"`
	Source      string    `parquet:"source,snappy"`
	Severity    string    `parquet:"severity,snappy"`
	Path        *string   `parquet:"path,optional,snappy"`
	Line        *int32    `parquet:"line,optional,snappy"`
	Description string    `parquet:"description,snappy"`
	Category    string    `parquet:"category,snappy"`
	RuleID      *string   `parquet:"rule_id,optional,snappy"`
	DedupKey    *string   `parquet:"dedup_key,optional,snappy"`
	IsDuplicate bool      `parquet:"is_duplicate,snappy"`
	CollectedAt time.Time `parquet:"collected_at,snappy"`
}

// ProcessedFinding represents a review-bot finding in the task pipeline.
// This struct maps to the processed_findings table.
type ProcessedFinding struct {
	FindingID        int64     `parquet:"finding_id,snappy"`
	Source           string    `parquet:"source,snappy"`
	SourceID         string    `parquet:"source_id,snappy"`
	PRNumber         int32     `parquet:"pr_number,snappy"`
	Path             *string   `parquet:"path,optional,snappy"`
	Severity         string    `parquet:"severity,snappy"`
	OriginalSeverity string    `parquet:"original_severity,snappy"`
	Category         string    `parquet:"category,snappy"`
	Description      string    `parquet:"description,snappy"`
	IsFalsePositive  bool      `parquet:"is_false_positive,snappy"`
	FPReason         *string   `parquet:"fp_reason,optional,snappy"`
	IsDuplicate      bool      `parquet:"is_duplicate,snappy"`
	TaskID           *string   `parquet:"task_id,optional,snappy"`
	TaskCreated      bool      `parquet:"task_created,snappy"`
	Dispatched       bool      `parquet:"dispatched,snappy"`
	CreatedAt        time.Time `parquet:"created_at,snappy"`
}

// WriteRunsParquet writes a slice of AuditRun structs to a Parquet file.
func WriteRunsParquet(data []AuditRun, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteFindingsParquet writes a slice of AuditFinding structs to a Parquet file.
func WriteFindingsParquet(data []AuditFinding, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteProcessedParquet writes a slice of ProcessedFinding structs to a Parquet file.
func WriteProcessedParquet(data []ProcessedFinding, outputPath string) error {
	return writeParquet(data, outputPath)
}

// writeParquet infers the schema from the struct tags of T.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	// Close flushes the footer, so its error matters
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertRuns converts schema.Run records for Parquet export.
func ConvertRuns(runs []schema.Run) []AuditRun {
	result := make([]AuditRun, len(runs))
	for i, r := range runs {
		services := make([]string, len(r.ServicesRun))
		for j, s := range r.ServicesRun {
			services[j] = string(s)
		}
		result[i] = AuditRun{
			RunID:       r.ID,
			Repo:        r.Repo,
			PRNumber:    int32(r.PRNumber),
			HeadSHA:     r.HeadSHA,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
			ServicesRun: strings.Join(services, ","),
			Status:      string(r.Status),
		}
	}
	return result
}

// ConvertFindings converts schema.Finding records for Parquet export.
func ConvertFindings(findings []schema.Finding) []AuditFinding {
	result := make([]AuditFinding, len(findings))
	for i, f := range findings {
		var line *int32
		if f.Line > 0 {
			l := int32(f.Line)
			line = &l
		}
		result[i] = AuditFinding{
			FindingID:   f.ID,
			RunID:       f.RunID,
			Source:      string(f.Source),
			Severity:    string(f.Severity),
			Path:        optional(f.Path),
			Line:        line,
			Description: f.Description,
			Category:    string(f.Category),
			RuleID:      optional(f.RuleID),
			DedupKey:    optional(f.DedupKey),
			IsDuplicate: f.IsDuplicate,
			CollectedAt: f.CollectedAt,
		}
	}
	return result
}

// ConvertProcessed converts schema.ProcessedFinding records for Parquet export.
func ConvertProcessed(records []schema.ProcessedFinding) []ProcessedFinding {
	result := make([]ProcessedFinding, len(records))
	for i, pf := range records {
		result[i] = ProcessedFinding{
			FindingID:        pf.ID,
			Source:           string(pf.Source),
			SourceID:         pf.SourceID,
			PRNumber:         int32(pf.PRNumber),
			Path:             optional(pf.Path),
			Severity:         string(pf.Severity),
			OriginalSeverity: string(pf.OriginalSeverity),
			Category:         string(pf.Category),
			Description:      pf.Description,
			IsFalsePositive:  pf.IsFalsePositive,
			FPReason:         optional(pf.FPReason),
			IsDuplicate:      pf.IsDuplicate,
			TaskID:           optional(pf.TaskID),
			TaskCreated:      pf.TaskCreated,
			Dispatched:       pf.Dispatched,
			CreatedAt:        pf.CreatedAt,
		}
	}
	return result
}

// optional maps the empty string to a null column value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
