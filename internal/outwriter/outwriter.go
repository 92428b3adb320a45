// Package outwriter has output and writer logic.
package outwriter

import (
	"os"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"golang.org/x/term"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the core logic.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteReport prints a run's findings using the configured output format.
func (ow *OutWriter) WriteReport(report schema.Report, cfg *contract.Config) error {
	return WriteReportResults(report, cfg)
}

// WriteSummary prints a run's aggregate counts using the configured output format.
func (ow *OutWriter) WriteSummary(summary schema.Summary, cfg *contract.Config) error {
	return WriteSummaryResults(summary, cfg)
}

// WriteAudit prints the outcome of an audit run using the configured output format.
func (ow *OutWriter) WriteAudit(result schema.AuditResult, cfg *contract.Config) error {
	return WriteAuditResults(result, cfg)
}

// WriteEmit prints what a Task Emitter batch did.
func (ow *OutWriter) WriteEmit(result schema.EmitResult, cfg *contract.Config) error {
	return WriteEmitResults(result, cfg)
}

// WriteProcessed prints task pipeline records with their task state.
func (ow *OutWriter) WriteProcessed(records []schema.ProcessedFinding, cfg *contract.Config) error {
	return WriteProcessedResults(records, cfg)
}

// WriteTaskLog prints the append-only task log.
func (ow *OutWriter) WriteTaskLog(entries []schema.TaskLogEntry, cfg *contract.Config) error {
	return WriteTaskLogResults(entries, cfg)
}

// WriteStatus prints the store status and health checks.
func (ow *OutWriter) WriteStatus(report schema.StatusReport, cfg *contract.Config) error {
	return WriteStatusResults(report, cfg)
}

// terminalWidth returns the width override, the detected terminal width, or 80.
func terminalWidth(cfg *contract.Config) int {
	if cfg.Width > 0 {
		return cfg.Width
	}
	detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || detectedWidth <= 0 {
		// Conservative default for narrow terminals and CI
		return 80
	}
	return detectedWidth
}

// GetMaxTablePathWidth calculates the maximum width for locations in table output
// based on terminal width and the fixed report columns.
func GetMaxTablePathWidth(cfg *contract.Config) int {
	// Rank + Severity + Source + Category with borders/padding
	baseWidth := 50

	// Leave the description column some room
	baseWidth += 30

	available := terminalWidth(cfg) - baseWidth
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}

// GetMaxTableDescriptionWidth is what remains for the description once the
// location column is sized.
func GetMaxTableDescriptionWidth(cfg *contract.Config) int {
	available := terminalWidth(cfg) - 50 - GetMaxTablePathWidth(cfg)
	if available < 20 {
		return 20
	}
	if available > 100 {
		return 100
	}
	return available
}
