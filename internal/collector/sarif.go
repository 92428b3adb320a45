package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"github.com/owenrumney/go-sarif/v2/sarif"
)

// defaultSARIFLevel applies when neither the result nor its rule sets a level.
const defaultSARIFLevel = "warning"

// SARIF reads findings from local SARIF 2.1.0 reports.
type SARIF struct {
	files    []string
	repoPath string
	store    contract.FindingStore
	logger   hclog.Logger
}

var _ contract.Collector = &SARIF{} // Compile-time check

// NewSARIF creates a SARIF collector over the given report files.
func NewSARIF(files []string, repoPath string, st contract.FindingStore, log hclog.Logger) *SARIF {
	return &SARIF{files: files, repoPath: repoPath, store: st, logger: log}
}

// Source implements contract.Collector.
func (s *SARIF) Source() schema.Source { return schema.SourceSARIF }

// Collect implements contract.Collector. Every file is parsed before anything
// is stored so a bad report contributes nothing.
func (s *SARIF) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	if len(s.files) == 0 {
		return 0, configError(s.Source(), "no sarif files configured")
	}

	var findings []schema.NewFinding
	for _, file := range s.files {
		report, err := readSARIF(file)
		if errors.Is(err, fs.ErrNotExist) {
			return 0, configError(s.Source(), "sarif file %s does not exist", file)
		}
		if err != nil {
			return 0, upstreamError(s.Source(), fmt.Errorf("failed to read %s: %w", file, err))
		}
		before := len(findings)
		findings = append(findings, s.convert(report, rc.RunID)...)
		s.logger.Debug("parsed report", "file", file, "results", len(findings)-before)
	}
	return insertAll(ctx, s.store, findings)
}

func readSARIF(file string) (*sarif.Report, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return sarif.FromBytes(content)
}

// convert maps the unsuppressed results of every run in a report.
func (s *SARIF) convert(report *sarif.Report, runID int64) []schema.NewFinding {
	var findings []schema.NewFinding
	for _, run := range report.Runs {
		rules := map[string]*sarif.ReportingDescriptor{}
		if run.Tool.Driver != nil {
			for _, rule := range run.Tool.Driver.Rules {
				rules[rule.ID] = rule
			}
		}

		for _, result := range run.Results {
			if len(result.Suppressions) > 0 {
				continue
			}
			ruleID := deref(result.RuleID)
			rule := rules[ruleID]

			level := sarifLevel(result, rule)

			path, line := s.location(result)
			findings = append(findings, schema.NewFinding{
				RunID:       runID,
				Source:      s.Source(),
				Severity:    lookupSeverity(sarifSeverities, level),
				Path:        path,
				Line:        line,
				Description: sarifDescription(result, rule),
				Category:    sarifCategory(result, rule),
				RuleID:      ruleID,
			})
		}
	}
	return findings
}

// location returns the repo-relative path and start line of the first
// physical location.
func (s *SARIF) location(result *sarif.Result) (string, int) {
	if len(result.Locations) == 0 || result.Locations[0].PhysicalLocation == nil {
		return "", 0
	}
	phys := result.Locations[0].PhysicalLocation

	path := ""
	if phys.ArtifactLocation != nil {
		path = s.relativePath(deref(phys.ArtifactLocation.URI))
	}
	line := 0
	if phys.Region != nil && phys.Region.StartLine != nil {
		line = *phys.Region.StartLine
	}
	return path, line
}

func (s *SARIF) relativePath(uri string) string {
	path := strings.TrimPrefix(uri, "file://")
	if s.repoPath != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(s.repoPath, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

// sarifLevel prefers the result level, then the rule's default configuration.
func sarifLevel(result *sarif.Result, rule *sarif.ReportingDescriptor) string {
	if level := deref(result.Level); level != "" {
		return level
	}
	if rule != nil && rule.DefaultConfiguration != nil && rule.DefaultConfiguration.Level != "" {
		return rule.DefaultConfiguration.Level
	}
	return defaultSARIFLevel
}

func sarifDescription(result *sarif.Result, rule *sarif.ReportingDescriptor) string {
	if text := deref(result.Message.Text); text != "" {
		return text
	}
	if rule != nil && rule.ShortDescription != nil {
		return deref(rule.ShortDescription.Text)
	}
	return ""
}

// sarifCategory is security when the result or its rule is tagged security.
func sarifCategory(result *sarif.Result, rule *sarif.ReportingDescriptor) schema.Category {
	if hasSecurityTag(result.Properties) {
		return schema.CategorySecurity
	}
	if rule != nil && hasSecurityTag(rule.Properties) {
		return schema.CategorySecurity
	}
	return schema.CategoryGeneral
}

func hasSecurityTag(props map[string]any) bool {
	var tags []string
	switch tv := props["tags"].(type) {
	case []string:
		tags = tv
	case []any:
		for _, it := range tv {
			if s, ok := it.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	for _, tag := range tags {
		if strings.EqualFold(tag, "security") {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
