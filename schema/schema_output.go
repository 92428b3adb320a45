package schema

// Report is the rendered view of one run's findings.
type Report struct {
	Run         Run       `json:"run"`
	MinSeverity Severity  `json:"min_severity"`
	Findings    []Finding `json:"findings"`
}

// FileCount is the number of unique findings at one path.
type FileCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Summary aggregates one run's findings.
type Summary struct {
	Run        Run              `json:"run"`
	Total      int              `json:"total"`
	Unique     int              `json:"unique"`
	Duplicates int              `json:"duplicates"`
	BySource   map[Source]int   `json:"by_source"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[Category]int `json:"by_category"`
	TopFiles   []FileCount      `json:"top_files"`
}

// AuditResult is what the orchestrator returns after sealing a run.
type AuditResult struct {
	RunID         int64             `json:"run_id"`
	Inserted      map[Source]int    `json:"inserted"`
	Failed        map[Source]string `json:"failed,omitempty"`
	DuplicatesNew int               `json:"duplicates_marked"`
	Summary       Summary           `json:"summary"`
	TasksEmitted  int               `json:"tasks_emitted,omitempty"`
}

// EmitResult counts what one Task Emitter batch did.
type EmitResult struct {
	Candidates int      `json:"candidates"`
	Created    int      `json:"created"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"` // lost the mark race to another emitter
	Dispatched int      `json:"dispatched"`
	TaskIDs    []string `json:"task_ids"`
	DryRun     bool     `json:"dry_run"`
}
