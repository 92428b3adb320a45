package schema

import "time"

// NewFinding is what a collector hands to the store; the store assigns the
// id, the dedup key and the collection time.
type NewFinding struct {
	RunID       int64
	Source      Source
	Severity    Severity
	Path        string
	Line        int
	Description string
	Category    Category
	RuleID      string
	IsDuplicate bool // pre-marked by a within-source duplicate check
}

// NewProcessedFinding is the insert shape of a task pipeline record.
type NewProcessedFinding struct {
	Source           Source
	SourceID         string
	PRNumber         int
	Path             string
	Line             int
	Severity         Severity
	OriginalSeverity Severity
	Category         Category
	Description      string
	IsFalsePositive  bool
	FPReason         string
}

// FindingFilter selects findings of a single run for reports.
type FindingFilter struct {
	RunID             int64
	MinSeverity       Severity
	IncludeDuplicates bool
	Limit             int // 0 means no limit
}

// ProcessedFilter selects task pipeline records for listing.
type ProcessedFilter struct {
	MinSeverity     Severity
	OnlyActionable  bool // not false-positive, not duplicate
	OnlyWithoutTask bool
	Limit           int
}

// TaskMark is the outcome of a successful task allocation for one record.
type TaskMark struct {
	FindingID   int64
	TaskID      string
	TaskRef     string
	Description string
	Severity    Severity
	CreatedAt   time.Time
}

// Verification is a manual override of a classifier verdict.
type Verification struct {
	FindingID     int64
	FalsePositive bool
	Reason        string
	VerifiedBy    string
	VerifiedAt    time.Time
}

// Snapshot is a full dump of the store, used for backups before a reset.
type Snapshot struct {
	TakenAt           time.Time          `json:"taken_at"`
	Runs              []Run              `json:"runs"`
	Findings          []Finding          `json:"findings"`
	ProcessedFindings []ProcessedFinding `json:"processed_findings"`
	TaskLog           []TaskLogEntry     `json:"task_log"`
}
