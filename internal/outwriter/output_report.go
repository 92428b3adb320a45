package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/parquet"
	"github.com/huangsam/codeaudit/schema"
)

// WriteReportResults outputs a run's findings, dispatching based on the output format configured.
func WriteReportResults(report schema.Report, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportCSV(w, report.Findings)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		if cfg.OutputFile == "" {
			return contract.UsageErrorf("parquet output requires --output-file")
		}
		if err := parquet.WriteFindingsParquet(parquet.ConvertFindings(report.Findings), cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Wrote Parquet to %s\n", cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportTable(report, cfg, w)
		}, "Wrote table")
	}
	return nil
}

// writeReportTable generates and writes the human-readable table.
func writeReportTable(report schema.Report, cfg *contract.Config, w io.Writer) error {
	pathWidth := GetMaxTablePathWidth(cfg)
	descWidth := GetMaxTableDescriptionWidth(cfg)

	headers := []string{"Rank", "Severity", "Source", "Location", "Category", "Description"}
	if cfg.IncludeDuplicates {
		headers = append(headers, "Dup")
	}

	var data [][]string
	for i, f := range report.Findings {
		row := []string{
			strconv.Itoa(i + 1),
			severityLabel(f.Severity, cfg),
			string(f.Source),
			contract.TruncatePath(contract.FormatLocation(f.Path, f.Line), pathWidth),
			string(f.Category),
			contract.TruncateRunes(f.Description, descWidth),
		}
		if cfg.IncludeDuplicates {
			row = append(row, yesNo(f.IsDuplicate))
		}
		data = append(data, row)
	}

	if len(data) > 0 {
		if err := renderTable(w, headers, data); err != nil {
			return err
		}
	}

	run := report.Run
	if _, err := fmt.Fprintf(w, "Showing %d findings at or above %s (run %d, %s @ %s)\n",
		len(report.Findings), report.MinSeverity, run.ID, run.Repo, shortSHA(run.HeadSHA)); err != nil {
		return err
	}
	return nil
}

// writeReportCSV writes the findings in CSV format.
func writeReportCSV(w io.Writer, findings []schema.Finding) error {
	header := []string{
		"id",
		"run_id",
		"source",
		"severity",
		"path",
		"line",
		"category",
		"rule_id",
		"description",
		"is_duplicate",
		"collected_at",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, f := range findings {
			line := ""
			if f.Line > 0 {
				line = strconv.Itoa(f.Line)
			}
			rec := []string{
				strconv.FormatInt(f.ID, 10),
				strconv.FormatInt(f.RunID, 10),
				string(f.Source),
				contract.GetPlainLabel(f.Severity),
				f.Path,
				line,
				string(f.Category),
				f.RuleID,
				f.Description,
				strconv.FormatBool(f.IsDuplicate),
				f.CollectedAt.Format(contract.DateTimeFormat),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// shortSHA keeps the first 8 characters of a commit hash.
func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
