package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// WriteSummaryResults outputs a run summary, dispatching based on the output format configured.
func WriteSummaryResults(summary schema.Summary, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, summary)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSummaryCSV(w, summary)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		return contract.UsageErrorf("parquet output is only supported by report and export")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSummaryText(summary, cfg, w)
		}, "Wrote summary")
	}
	return nil
}

// WriteAuditResults outputs the per-source outcome of an audit followed by its summary.
func WriteAuditResults(result schema.AuditResult, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSummaryCSV(w, result.Summary)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		return contract.UsageErrorf("parquet output is only supported by report and export")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeAuditText(result, cfg, w)
		}, "Wrote audit")
	}
	return nil
}

func writeAuditText(result schema.AuditResult, cfg *contract.Config, w io.Writer) error {
	var data [][]string
	for _, src := range schema.AllSources {
		inserted, ran := result.Inserted[src]
		msg, failed := result.Failed[src]
		switch {
		case failed:
			data = append(data, []string{string(src), "-", "failed: " + contract.TruncateRunes(msg, 60)})
		case ran:
			data = append(data, []string{string(src), strconv.Itoa(inserted), "ok"})
		}
	}
	if len(data) > 0 {
		if err := renderTable(w, []string{"Source", "Inserted", "Status"}, data); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Run %d sealed, %d duplicates marked\n", result.RunID, result.DuplicatesNew); err != nil {
		return err
	}
	if result.TasksEmitted > 0 {
		if _, err := fmt.Fprintf(w, "Tasks emitted: %d\n", result.TasksEmitted); err != nil {
			return err
		}
	}
	return writeSummaryText(result.Summary, cfg, w)
}

func writeSummaryText(summary schema.Summary, cfg *contract.Config, w io.Writer) error {
	run := summary.Run
	if _, err := fmt.Fprintf(w, "Run %d: %s @ %s (%s)\n", run.ID, run.Repo, shortSHA(run.HeadSHA), run.Status); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Findings: %d total, %d unique, %d duplicates\n", summary.Total, summary.Unique, summary.Duplicates); err != nil {
		return err
	}
	if summary.Unique == 0 {
		return nil
	}

	var bySeverity [][]string
	for _, sev := range schema.AllSeverities {
		if n := summary.BySeverity[sev]; n > 0 {
			bySeverity = append(bySeverity, []string{severityLabel(sev, cfg), strconv.Itoa(n)})
		}
	}
	if err := renderTable(w, []string{"Severity", "Count"}, bySeverity); err != nil {
		return err
	}

	var bySource [][]string
	for _, src := range schema.AllSources {
		if n := summary.BySource[src]; n > 0 {
			bySource = append(bySource, []string{string(src), strconv.Itoa(n)})
		}
	}
	if err := renderTable(w, []string{"Source", "Count"}, bySource); err != nil {
		return err
	}

	var byCategory [][]string
	for _, cat := range schema.AllCategories {
		if n := summary.ByCategory[cat]; n > 0 {
			byCategory = append(byCategory, []string{string(cat), strconv.Itoa(n)})
		}
	}
	if err := renderTable(w, []string{"Category", "Count"}, byCategory); err != nil {
		return err
	}

	if len(summary.TopFiles) > 0 {
		pathWidth := GetMaxTablePathWidth(cfg)
		var files [][]string
		for _, fc := range summary.TopFiles {
			files = append(files, []string{contract.TruncatePath(fc.Path, pathWidth), strconv.Itoa(fc.Count)})
		}
		if err := renderTable(w, []string{"File", "Count"}, files); err != nil {
			return err
		}
	}
	return nil
}

// writeSummaryCSV flattens the summary into dimension,key,count rows.
func writeSummaryCSV(w io.Writer, summary schema.Summary) error {
	return writeCSVWithHeader(w, []string{"dimension", "key", "count"}, func(cw *csv.Writer) error {
		rows := [][]string{
			{"total", "all", strconv.Itoa(summary.Total)},
			{"total", "unique", strconv.Itoa(summary.Unique)},
			{"total", "duplicates", strconv.Itoa(summary.Duplicates)},
		}
		for _, sev := range schema.AllSeverities {
			if n, ok := summary.BySeverity[sev]; ok {
				rows = append(rows, []string{"severity", string(sev), strconv.Itoa(n)})
			}
		}
		for _, src := range schema.AllSources {
			if n, ok := summary.BySource[src]; ok {
				rows = append(rows, []string{"source", string(src), strconv.Itoa(n)})
			}
		}
		for _, cat := range schema.AllCategories {
			if n, ok := summary.ByCategory[cat]; ok {
				rows = append(rows, []string{"category", string(cat), strconv.Itoa(n)})
			}
		}
		for _, fc := range summary.TopFiles {
			rows = append(rows, []string{"file", fc.Path, strconv.Itoa(fc.Count)})
		}
		for _, rec := range rows {
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}
