package outwriter

import (
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("ok")
	failMark = color.New(color.FgRed, color.Bold).Sprint("FAIL")
)

// WriteStatusResults outputs the store status and health checks.
func WriteStatusResults(report schema.StatusReport, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeStatusText(report, cfg, w)
	}, "Wrote status")
}

func writeStatusText(report schema.StatusReport, cfg *contract.Config, w io.Writer) error {
	status := report.Store
	lines := []string{
		fmt.Sprintf("Store Backend: %s", status.Backend),
		fmt.Sprintf("Connected: %t", status.Connected),
	}
	if status.Connected {
		lines = append(lines, fmt.Sprintf("Total Runs: %d", status.TotalRuns))
		if status.TotalRuns > 0 {
			lines = append(lines,
				fmt.Sprintf("Last Run ID: %d (%s)", status.LastRunID, status.LastRunStatus),
				fmt.Sprintf("Last Run: %s", status.LastRunTime.Format("2006-01-02 15:04:05")),
				fmt.Sprintf("Running Runs: %d", status.RunningRuns),
			)
		}
		lines = append(lines, fmt.Sprintf("Pending Tasks: %d", status.PendingTasks), "Table Sizes:")
		tables := make([]string, 0, len(status.TableSizes))
		for table := range status.TableSizes {
			tables = append(tables, table)
		}
		slices.Sort(tables)
		for _, table := range tables {
			lines = append(lines, fmt.Sprintf("  %s: %d rows", table, status.TableSizes[table]))
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if len(report.Checks) == 0 {
		return nil
	}
	var data [][]string
	for _, c := range report.Checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		if cfg.UseColors {
			mark = okMark
			if !c.OK {
				mark = failMark
			}
		}
		data = append(data, []string{c.Name, mark, c.Detail})
	}
	return renderTable(w, []string{"Check", "Result", "Detail"}, data)
}
