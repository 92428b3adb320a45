package contract

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/codeaudit/schema"
)

// Default values for configuration.
const (
	DefaultResultLimit     = 100
	MaxResultLimit         = 10000
	DefaultTaskLimit       = 20
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultStaleAfter      = time.Hour
	DefaultSonarPageSize   = 100
	DefaultSonarMaxPages   = 20
	DefaultCodeRabbitLogin = "coderabbitai[bot]"
	DefaultSonarBaseURL    = "https://sonarcloud.io"
	DefaultCodacyBaseURL   = "https://app.codacy.com"
	DefaultCodeFactorURL   = "https://www.codefactor.io"
	DefaultGitHubBaseURL   = "https://api.github.com/"
	DefaultProvider        = "gh"
	DescriptionMaxRunes    = 500
	LatestRunSelector      = "latest"
)

// Task allocator kinds.
const (
	AllocatorCommand = "command"
	AllocatorLocal   = "local"
)

// DateTimeFormat is the default date time representation.
var DateTimeFormat = time.RFC3339

// Config holds the runtime configuration for every command.
// This struct is the "final, validated" config and is never mutated after setup.
type Config struct {
	RepoPath string
	Repo     string // owner/name
	PRNumber int
	HeadSHA  string
	Services []schema.Source

	Output            schema.OutputMode
	OutputFile        string
	MinSeverity       schema.Severity
	RunID             int64 // 0 selects the latest run
	ResultLimit       int
	IncludeDuplicates bool
	Width             int // Terminal width override (0 = auto-detect)
	UseColors         bool

	Backend   schema.DatabaseBackend
	DBConnect string // Please use env var as this is plaintext
	BackupDir string

	LogLevel string
	LogJSON  bool

	HTTPTimeout time.Duration // 0 disables the timeout
	StaleAfter  time.Duration

	Sonar      SonarConfig
	Codacy     CodacyConfig
	CodeFactor CodeFactorConfig
	CodeRabbit CodeRabbitConfig
	SARIFFiles []string

	Tasks  TaskConfig
	Verify VerifyConfig
}

// SonarConfig holds SonarCloud access settings.
type SonarConfig struct {
	BaseURL  string
	Token    string
	Project  string // component key; defaults to owner_name
	PageSize int
	MaxPages int
}

// CodacyConfig holds Codacy access settings.
type CodacyConfig struct {
	BaseURL  string
	Token    string
	Provider string
}

// CodeFactorConfig holds CodeFactor access settings.
type CodeFactorConfig struct {
	BaseURL  string
	Token    string
	Provider string
}

// CodeRabbitConfig holds GitHub access settings for reading review-bot comments.
type CodeRabbitConfig struct {
	GitHubBaseURL string
	GitHubToken   string
	BotLogin      string
}

// TaskConfig holds Task Emitter settings.
type TaskConfig struct {
	Emit        bool // run the emitter after an audit
	Allocator   string
	AllocateCmd []string
	DispatchCmd []string
	Dispatch    bool
	MinSeverity schema.Severity
	Limit       int
	DryRun      bool

	// Filters for tasks list
	OnlyActionable  bool
	OnlyWithoutTask bool
	ShowLog         bool
}

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// VerifyConfig is a manual verdict for one processed finding.
type VerifyConfig struct {
	FindingID     int64
	FalsePositive bool
	Reason        string
	VerifiedBy    string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	RepoPathStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	Output      string `mapstructure:"output"`
	OutputFile  string `mapstructure:"output-file"`
	Limit       int    `mapstructure:"limit"`
	Width       int    `mapstructure:"width"`
	Color       string `mapstructure:"color"`
	Backend     string `mapstructure:"backend"`
	DBConnect   string `mapstructure:"db-connect"`
	LogLevel    string `mapstructure:"log-level"`
	LogJSON     bool   `mapstructure:"log-json"`
	HTTPTimeout string `mapstructure:"http-timeout"`

	// --- Fields from auditCmd.Flags() ---
	Repo       string `mapstructure:"repo"`
	PR         int    `mapstructure:"pr"`
	HeadSHA    string `mapstructure:"head-sha"`
	Services   string `mapstructure:"services"`
	EmitTasks  bool   `mapstructure:"emit-tasks"`
	StaleAfter string `mapstructure:"stale-after"`

	// --- Fields from reportCmd.Flags() ---
	MinSeverity       string `mapstructure:"min-severity"`
	Run               string `mapstructure:"run"`
	IncludeDuplicates bool   `mapstructure:"include-duplicates"`

	// --- Fields from resetCmd.Flags() ---
	BackupDir string `mapstructure:"backup-dir"`

	// --- Fields from tasksEmitCmd.Flags() ---
	TaskMinSeverity string `mapstructure:"task-min-severity"`
	TaskLimit       int    `mapstructure:"task-limit"`
	DryRun          bool   `mapstructure:"dry-run"`
	Dispatch        bool   `mapstructure:"dispatch"`

	// --- Fields from tasksListCmd.Flags() ---
	Actionable bool `mapstructure:"actionable"`
	Pending    bool `mapstructure:"pending"`
	TaskLog    bool `mapstructure:"task-log"`

	// --- Fields from verifyCmd.Flags() ---
	FalsePositive bool   `mapstructure:"false-positive"`
	Valid         bool   `mapstructure:"valid"`
	VerifiedBy    string `mapstructure:"by"`
	Reason        string `mapstructure:"reason"`

	// --- Credentials and upstreams, normally from env or the config file ---
	SonarToken       string `mapstructure:"sonar-token"`
	SonarURL         string `mapstructure:"sonar-url"`
	SonarProject     string `mapstructure:"sonar-project"`
	SonarPageSize    int    `mapstructure:"sonar-page-size"`
	SonarMaxPages    int    `mapstructure:"sonar-max-pages"`
	CodacyToken      string `mapstructure:"codacy-token"`
	CodacyURL        string `mapstructure:"codacy-url"`
	CodacyProvider   string `mapstructure:"codacy-provider"`
	CodeFactorToken  string `mapstructure:"codefactor-token"`
	CodeFactorURL    string `mapstructure:"codefactor-url"`
	GitHubToken      string `mapstructure:"github-token"`
	GitHubURL        string `mapstructure:"github-url"`
	CodeRabbitLogin  string `mapstructure:"coderabbit-login"`
	SARIFFiles       string `mapstructure:"sarif-files"`
	TaskAllocator    string `mapstructure:"task-allocator"`
	TaskAllocatorCmd string `mapstructure:"task-allocator-cmd"`
	TaskDispatchCmd  string `mapstructure:"task-dispatch-cmd"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Services = slices.Clone(c.Services)
	clone.SARIFFiles = slices.Clone(c.SARIFFiles)
	clone.Tasks.AllocateCmd = slices.Clone(c.Tasks.AllocateCmd)
	clone.Tasks.DispatchCmd = slices.Clone(c.Tasks.DispatchCmd)
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct. Every failure wraps ErrUsage.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfig(cfg, input); err != nil {
		return err
	}
	if err := processServices(cfg, input); err != nil {
		return err
	}
	if err := processDurations(cfg, input); err != nil {
		return err
	}
	if err := processTaskConfig(cfg, input); err != nil {
		return err
	}
	processUpstreams(cfg, input)
	return nil
}

// ResolveRepo fills in the repository identity for an audit, preferring explicit
// inputs over what the local checkout reports.
func ResolveRepo(ctx context.Context, cfg *Config, inspector RepoInspector, input *ConfigRawInput) error {
	repoPath := input.RepoPathStr
	if repoPath == "" {
		repoPath = "."
	}
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return UsageErrorf("invalid repo path %q: %v", repoPath, err)
	}
	cfg.RepoPath = absPath

	if input.PR < 0 {
		return UsageErrorf("pr must be a positive integer (received %d)", input.PR)
	}
	cfg.PRNumber = input.PR

	cfg.Repo = strings.TrimSpace(input.Repo)
	if cfg.Repo == "" {
		slug, err := inspector.Slug(ctx, cfg.RepoPath)
		if err != nil {
			return UsageErrorf("cannot determine repository from %s, pass --repo owner/name: %v", cfg.RepoPath, err)
		}
		cfg.Repo = slug
	}
	if err := validateSlug(cfg.Repo); err != nil {
		return err
	}

	cfg.HeadSHA = strings.TrimSpace(input.HeadSHA)
	if cfg.HeadSHA == "" {
		sha, err := inspector.HeadSHA(ctx, cfg.RepoPath)
		if err != nil {
			return UsageErrorf("cannot read HEAD of %s, pass --head-sha: %v", cfg.RepoPath, err)
		}
		cfg.HeadSHA = sha
	}

	if cfg.Sonar.Project == "" {
		cfg.Sonar.Project = strings.ReplaceAll(cfg.Repo, "/", "_")
	}
	return nil
}

// ProcessVerify validates the verify command's positional id and verdict flags.
func ProcessVerify(cfg *Config, input *ConfigRawInput, args []string) error {
	if len(args) != 1 {
		return UsageErrorf("verify takes exactly one finding id")
	}
	id, err := ParseID(args[0])
	if err != nil {
		return err
	}
	if input.FalsePositive == input.Valid {
		return UsageErrorf("pass exactly one of --false-positive or --valid")
	}
	by := strings.TrimSpace(input.VerifiedBy)
	if by == "" {
		return UsageErrorf("--by is required to record who verified the finding")
	}
	cfg.Verify = VerifyConfig{
		FindingID:     id,
		FalsePositive: input.FalsePositive,
		Reason:        strings.TrimSpace(input.Reason),
		VerifiedBy:    by,
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return UsageErrorf("db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return UsageErrorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return UsageErrorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return UsageErrorf("db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return UsageErrorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return UsageErrorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	default:
		return UsageErrorf("invalid backend '%s'. must be sqlite, mysql, postgresql", backend)
	}
	return nil
}

// ParseRunSelector turns "latest" or a positive integer into a run ID.
// The latest run is represented by 0.
func ParseRunSelector(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == LatestRunSelector {
		return 0, nil
	}
	return ParseID(s)
}

// ParseSeverityInput validates a severity against the allow-list.
func ParseSeverityInput(flag, s string) (schema.Severity, error) {
	if s == "" {
		return schema.SeverityInfo, nil
	}
	sev, ok := schema.ParseSeverity(s)
	if !ok {
		return "", UsageErrorf("invalid %s '%s'. must be critical, high, medium, low, info", flag, s)
	}
	return sev, nil
}

// validateSimpleInputs processes and validates all output and selection fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.IncludeDuplicates = input.IncludeDuplicates
	cfg.LogJSON = input.LogJSON

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return UsageErrorf("invalid --color value: %v", err)
	}
	cfg.UseColors = colors

	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return UsageErrorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	if input.Width < 0 {
		return UsageErrorf("width cannot be negative (received %d)", input.Width)
	}

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return UsageErrorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return UsageErrorf("parquet output requires --output-file")
	}

	if cfg.MinSeverity, err = ParseSeverityInput("min-severity", input.MinSeverity); err != nil {
		return err
	}

	if cfg.RunID, err = ParseRunSelector(input.Run); err != nil {
		return UsageErrorf("invalid --run value '%s': must be 'latest' or a positive run id", input.Run)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(input.LogLevel))
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		return UsageErrorf("invalid log level '%s'. must be trace, debug, info, warn, error, off", input.LogLevel)
	}

	return nil
}

// validateBackendConfig validates the store backend configuration.
func validateBackendConfig(cfg *Config, input *ConfigRawInput) error {
	cfg.Backend = schema.DatabaseBackend(strings.ToLower(input.Backend))
	if cfg.Backend == "" {
		cfg.Backend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.Backend]; !ok {
		return UsageErrorf("invalid backend '%s'. must be sqlite, mysql, postgresql", input.Backend)
	}
	cfg.DBConnect = input.DBConnect
	cfg.BackupDir = input.BackupDir
	return ValidateDatabaseConnectionString(cfg.Backend, cfg.DBConnect)
}

// processServices parses the comma-separated source list. Empty means all sources.
func processServices(cfg *Config, input *ConfigRawInput) error {
	cfg.Services = nil
	if strings.TrimSpace(input.Services) == "" {
		cfg.Services = slices.Clone(schema.AllSources)
		return nil
	}
	for part := range strings.SplitSeq(input.Services, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		src, ok := schema.ParseSource(part)
		if !ok {
			return UsageErrorf("invalid service '%s'. must be coderabbit, sonarcloud, codacy, codefactor, sarif", part)
		}
		if !slices.Contains(cfg.Services, src) {
			cfg.Services = append(cfg.Services, src)
		}
	}
	if len(cfg.Services) == 0 {
		return UsageErrorf("services cannot be empty")
	}
	return nil
}

// processDurations parses timeout and staleness settings.
func processDurations(cfg *Config, input *ConfigRawInput) error {
	cfg.HTTPTimeout = DefaultHTTPTimeout
	if input.HTTPTimeout != "" {
		d, err := time.ParseDuration(input.HTTPTimeout)
		if err != nil || d < 0 {
			return UsageErrorf("invalid http-timeout '%s': use a duration such as 30s (0 disables)", input.HTTPTimeout)
		}
		cfg.HTTPTimeout = d
	}

	cfg.StaleAfter = DefaultStaleAfter
	if input.StaleAfter != "" {
		d, err := time.ParseDuration(input.StaleAfter)
		if err != nil || d <= 0 {
			return UsageErrorf("invalid stale-after '%s': use a positive duration such as 1h", input.StaleAfter)
		}
		cfg.StaleAfter = d
	}
	return nil
}

// processTaskConfig validates the Task Emitter settings.
func processTaskConfig(cfg *Config, input *ConfigRawInput) error {
	var err error
	cfg.Tasks = TaskConfig{
		Emit:        input.EmitTasks,
		Dispatch:    input.Dispatch,
		DryRun:      input.DryRun,
		AllocateCmd: strings.Fields(input.TaskAllocatorCmd),
		DispatchCmd: strings.Fields(input.TaskDispatchCmd),

		OnlyActionable:  input.Actionable || input.Pending,
		OnlyWithoutTask: input.Pending,
		ShowLog:         input.TaskLog,
	}

	if cfg.Tasks.MinSeverity, err = ParseSeverityInput("task-min-severity", input.TaskMinSeverity); err != nil {
		return err
	}
	if input.TaskMinSeverity == "" {
		cfg.Tasks.MinSeverity = schema.SeverityMedium
	}

	cfg.Tasks.Limit = input.TaskLimit
	if cfg.Tasks.Limit == 0 {
		cfg.Tasks.Limit = DefaultTaskLimit
	}
	if cfg.Tasks.Limit < 0 || cfg.Tasks.Limit > MaxResultLimit {
		return UsageErrorf("task-limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.TaskLimit)
	}

	cfg.Tasks.Allocator = strings.ToLower(strings.TrimSpace(input.TaskAllocator))
	switch cfg.Tasks.Allocator {
	case "":
		cfg.Tasks.Allocator = AllocatorLocal
		if len(cfg.Tasks.AllocateCmd) > 0 {
			cfg.Tasks.Allocator = AllocatorCommand
		}
	case AllocatorLocal:
	case AllocatorCommand:
		if len(cfg.Tasks.AllocateCmd) == 0 {
			return UsageErrorf("task-allocator-cmd is required when using the command allocator")
		}
	default:
		return UsageErrorf("invalid task-allocator '%s'. must be command or local", input.TaskAllocator)
	}

	if cfg.Tasks.Dispatch && len(cfg.Tasks.DispatchCmd) == 0 {
		return UsageErrorf("--dispatch requires task-dispatch-cmd")
	}
	return nil
}

// processUpstreams copies credentials and endpoints, filling defaults.
func processUpstreams(cfg *Config, input *ConfigRawInput) {
	cfg.Sonar = SonarConfig{
		BaseURL:  orDefault(input.SonarURL, DefaultSonarBaseURL),
		Token:    input.SonarToken,
		Project:  input.SonarProject,
		PageSize: input.SonarPageSize,
		MaxPages: input.SonarMaxPages,
	}
	if cfg.Sonar.PageSize <= 0 || cfg.Sonar.PageSize > 500 {
		cfg.Sonar.PageSize = DefaultSonarPageSize
	}
	if cfg.Sonar.MaxPages <= 0 {
		cfg.Sonar.MaxPages = DefaultSonarMaxPages
	}
	cfg.Codacy = CodacyConfig{
		BaseURL:  orDefault(input.CodacyURL, DefaultCodacyBaseURL),
		Token:    input.CodacyToken,
		Provider: orDefault(input.CodacyProvider, DefaultProvider),
	}
	cfg.CodeFactor = CodeFactorConfig{
		BaseURL:  orDefault(input.CodeFactorURL, DefaultCodeFactorURL),
		Token:    input.CodeFactorToken,
		Provider: "github",
	}
	cfg.CodeRabbit = CodeRabbitConfig{
		GitHubBaseURL: orDefault(input.GitHubURL, DefaultGitHubBaseURL),
		GitHubToken:   input.GitHubToken,
		BotLogin:      orDefault(input.CodeRabbitLogin, DefaultCodeRabbitLogin),
	}
	cfg.SARIFFiles = nil
	for part := range strings.SplitSeq(input.SARIFFiles, ",") {
		if p := strings.TrimSpace(part); p != "" {
			cfg.SARIFFiles = append(cfg.SARIFFiles, p)
		}
	}
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) {
	profile.Enabled = profilePrefix != ""
	profile.Prefix = profilePrefix
}

// validateSlug checks that a repository identifier looks like owner/name.
func validateSlug(slug string) error {
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return UsageErrorf("invalid repo '%s'. must be owner/name", slug)
	}
	return nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// String renders the command line of a subprocess setting for diagnostics.
func (t TaskConfig) String() string {
	return fmt.Sprintf("allocator=%s cmd=%q dispatch=%q", t.Allocator, strings.Join(t.AllocateCmd, " "), strings.Join(t.DispatchCmd, " "))
}
