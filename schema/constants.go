package schema

import "strings"

// Custom string types for type safety.
type (
	// Severity is the normalized severity of a finding.
	Severity string

	// Source identifies the upstream service a finding came from.
	Source string

	// Category is a coarse classification tag for a finding.
	Category string

	// RunStatus is the lifecycle state of an audit run.
	RunStatus string

	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for the finding store.
	DatabaseBackend string
)

// All severities, from most to least severe.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info" // default bucket
)

// All sources supported.
const (
	SourceCodeRabbit Source = "coderabbit"
	SourceSonarCloud Source = "sonarcloud"
	SourceCodacy     Source = "codacy"
	SourceCodeFactor Source = "codefactor"
	SourceSARIF      Source = "sarif"
)

// All categories supported.
const (
	CategorySecurity    Category = "security"
	CategoryBug         Category = "bug"
	CategoryStyle       Category = "style"
	CategoryPerformance Category = "performance"
	CategoryGeneral     Category = "general" // default bucket
)

// All run states.
const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
)

// All output modes supported.
const (
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	CSVOut     OutputMode = "csv"
	ParquetOut OutputMode = "parquet"
)

// All store backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
)

// AllSeverities lists severities in descending order.
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// AllSources lists every collector source in the order the orchestrator runs them.
var AllSources = []Source{SourceCodeRabbit, SourceSonarCloud, SourceCodacy, SourceCodeFactor, SourceSARIF}

// AllCategories lists categories in the order reports show them.
var AllCategories = []Category{CategorySecurity, CategoryBug, CategoryPerformance, CategoryStyle, CategoryGeneral}

// ValidSeverities lists all valid severities.
var ValidSeverities = map[Severity]struct{}{
	SeverityCritical: {},
	SeverityHigh:     {},
	SeverityMedium:   {},
	SeverityLow:      {},
	SeverityInfo:     {},
}

// ValidSources lists all valid sources.
var ValidSources = map[Source]struct{}{
	SourceCodeRabbit: {},
	SourceSonarCloud: {},
	SourceCodacy:     {},
	SourceCodeFactor: {},
	SourceSARIF:      {},
}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:    {},
	JSONOut:    {},
	CSVOut:     {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid store backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
}

// Rank returns the ordering weight of a severity: critical is 4, info is 0.
// Unknown values rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as or more severe than min.
func (s Severity) AtLeast(minimum Severity) bool {
	return s.Rank() >= minimum.Rank()
}

// ParseSeverity normalizes a user-supplied severity. The second return value
// is false when the value is not in the allow-list.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := ValidSeverities[sev]
	return sev, ok
}

// ParseSource normalizes a user-supplied source name.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	_, ok := ValidSources[src]
	return src, ok
}
