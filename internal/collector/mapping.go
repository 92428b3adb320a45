package collector

import (
	"strings"

	"github.com/huangsam/codeaudit/schema"
)

// Mapping tables from native upstream values. Lookups are case-insensitive
// and fall back to info / general.

var sonarSeverities = map[string]schema.Severity{
	"blocker":  schema.SeverityCritical,
	"critical": schema.SeverityCritical,
	"major":    schema.SeverityHigh,
	"minor":    schema.SeverityMedium,
	"info":     schema.SeverityInfo,
}

var sonarCategories = map[string]schema.Category{
	"vulnerability":    schema.CategorySecurity,
	"security_hotspot": schema.CategorySecurity,
	"bug":              schema.CategoryBug,
	"code_smell":       schema.CategoryStyle,
}

var codacySeverities = map[string]schema.Severity{
	"error":   schema.SeverityHigh,
	"warning": schema.SeverityMedium,
	"info":    schema.SeverityInfo,
}

var codacyCategories = map[string]schema.Category{
	"security":     schema.CategorySecurity,
	"errorprone":   schema.CategoryBug,
	"performance":  schema.CategoryPerformance,
	"codestyle":    schema.CategoryStyle,
	"bestpractice": schema.CategoryStyle,
}

var codeFactorSeverities = map[string]schema.Severity{
	"critical": schema.SeverityCritical,
	"major":    schema.SeverityHigh,
	"minor":    schema.SeverityMedium,
	"info":     schema.SeverityInfo,
}

var codeFactorCategories = map[string]schema.Category{
	"security":    schema.CategorySecurity,
	"performance": schema.CategoryPerformance,
	"style":       schema.CategoryStyle,
	"complexity":  schema.CategoryStyle,
	"duplication": schema.CategoryStyle,
	"bugrisk":     schema.CategoryBug,
}

var sarifSeverities = map[string]schema.Severity{
	"error":   schema.SeverityHigh,
	"warning": schema.SeverityMedium,
	"note":    schema.SeverityLow,
	"none":    schema.SeverityInfo,
}

// codeRabbitLabels are matched against the comment body in order.
var codeRabbitLabels = []struct {
	label    string
	severity schema.Severity
}{
	{"potential issue", schema.SeverityHigh},
	{"refactor suggestion", schema.SeverityMedium},
	{"nitpick", schema.SeverityLow},
}

func lookupSeverity(table map[string]schema.Severity, native string) schema.Severity {
	if sev, ok := table[normalizeKey(native)]; ok {
		return sev
	}
	return schema.SeverityInfo
}

func lookupCategory(table map[string]schema.Category, native string) schema.Category {
	if cat, ok := table[normalizeKey(native)]; ok {
		return cat
	}
	return schema.CategoryGeneral
}

// normalizeKey folds case and drops separators so "Error Prone",
// "error_prone" and "ErrorProne" agree, except for Sonar's snake_case keys.
func normalizeKey(native string) string {
	key := strings.ToLower(strings.TrimSpace(native))
	if strings.Contains(key, "_") {
		return key
	}
	return strings.NewReplacer(" ", "", "-", "").Replace(key)
}

// codeRabbitSeverity maps the label CodeRabbit puts on a comment.
func codeRabbitSeverity(body string) schema.Severity {
	lower := strings.ToLower(body)
	for _, l := range codeRabbitLabels {
		if strings.Contains(lower, l.label) {
			return l.severity
		}
	}
	return schema.SeverityInfo
}
