package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// WriteEmitResults outputs the counters of a Task Emitter batch.
func WriteEmitResults(result schema.EmitResult, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeEmitText(result, w)
	}, "Wrote emit result")
}

func writeEmitText(result schema.EmitResult, w io.Writer) error {
	if result.DryRun {
		_, err := fmt.Fprintf(w, "Dry run: %d findings would get a task\n", result.Candidates)
		return err
	}
	if _, err := fmt.Fprintf(w, "Candidates: %d, created: %d, failed: %d, skipped: %d, dispatched: %d\n",
		result.Candidates, result.Created, result.Failed, result.Skipped, result.Dispatched); err != nil {
		return err
	}
	if len(result.TaskIDs) > 0 {
		if _, err := fmt.Fprintf(w, "Task IDs: %s\n", strings.Join(result.TaskIDs, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// WriteProcessedResults outputs task pipeline records, dispatching based on the output format configured.
func WriteProcessedResults(records []schema.ProcessedFinding, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, records)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeProcessedCSV(w, records)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		return contract.UsageErrorf("parquet output is only supported by report and export")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeProcessedTable(records, cfg, w)
		}, "Wrote table")
	}
	return nil
}

// TaskState names where a record is in the task pipeline.
func TaskState(pf schema.ProcessedFinding) string {
	switch {
	case pf.IsFalsePositive:
		return "false-positive"
	case pf.IsDuplicate && pf.DuplicateOf > 0:
		return "duplicate of " + strconv.FormatInt(pf.DuplicateOf, 10)
	case pf.IsDuplicate:
		return "duplicate"
	case pf.Dispatched:
		return "dispatched"
	case pf.TaskCreated:
		return "task created"
	default:
		return "pending"
	}
}

func writeProcessedTable(records []schema.ProcessedFinding, cfg *contract.Config, w io.Writer) error {
	pathWidth := GetMaxTablePathWidth(cfg)
	descWidth := GetMaxTableDescriptionWidth(cfg)

	var data [][]string
	for _, pf := range records {
		data = append(data, []string{
			strconv.FormatInt(pf.ID, 10),
			severityLabel(pf.Severity, cfg),
			contract.TruncatePath(contract.FormatLocation(pf.Path, pf.Line), pathWidth),
			TaskState(pf),
			orDash(pf.TaskID),
			contract.TruncateRunes(pf.Description, descWidth),
		})
	}
	if len(data) > 0 {
		if err := renderTable(w, []string{"ID", "Severity", "Location", "State", "Task", "Description"}, data); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Showing %d processed findings\n", len(records))
	return err
}

func writeProcessedCSV(w io.Writer, records []schema.ProcessedFinding) error {
	header := []string{
		"id",
		"source",
		"source_id",
		"pr_number",
		"severity",
		"original_severity",
		"category",
		"path",
		"line",
		"state",
		"task_id",
		"fp_reason",
		"verified_by",
		"description",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, pf := range records {
			rec := []string{
				strconv.FormatInt(pf.ID, 10),
				string(pf.Source),
				pf.SourceID,
				strconv.Itoa(pf.PRNumber),
				string(pf.Severity),
				string(pf.OriginalSeverity),
				string(pf.Category),
				pf.Path,
				strconv.Itoa(pf.Line),
				TaskState(pf),
				pf.TaskID,
				pf.FPReason,
				pf.VerifiedBy,
				pf.Description,
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

// WriteTaskLogResults outputs the task log.
func WriteTaskLogResults(entries []schema.TaskLogEntry, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, entries)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"id", "finding_id", "task_id", "task_ref", "severity", "created_at", "description"}, func(cw *csv.Writer) error {
				for _, e := range entries {
					rec := []string{
						strconv.FormatInt(e.ID, 10),
						strconv.FormatInt(e.FindingID, 10),
						e.TaskID,
						e.TaskRef,
						string(e.Severity),
						e.CreatedAt.Format(contract.DateTimeFormat),
						e.Description,
					}
					if err := cw.Write(rec); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		}, "Wrote CSV")
	case schema.ParquetOut:
		return contract.UsageErrorf("parquet output is only supported by report and export")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			descWidth := GetMaxTableDescriptionWidth(cfg)
			var data [][]string
			for _, e := range entries {
				data = append(data, []string{
					e.TaskID,
					strconv.FormatInt(e.FindingID, 10),
					orDash(e.TaskRef),
					severityLabel(e.Severity, cfg),
					formatTime(&e.CreatedAt),
					contract.TruncateRunes(e.Description, descWidth),
				})
			}
			if len(data) > 0 {
				if err := renderTable(w, []string{"Task", "Finding", "Ref", "Severity", "Created", "Description"}, data); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(w, "Showing %d task log entries\n", len(entries))
			return err
		}, "Wrote table")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
