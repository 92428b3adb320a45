// Package schema has the models and enums shared by every part of codeaudit.
package schema

import (
	"strconv"
	"time"
)

// Finding is one normalized review or analysis result from a single source,
// owned by an audit run.
type Finding struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	Source      Source    `json:"source"`
	Severity    Severity  `json:"severity"`
	Path        string    `json:"path,omitempty"` // empty for repo-wide findings
	Line        int       `json:"line,omitempty"` // 0 means no line
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	RuleID      string    `json:"rule_id,omitempty"`
	DedupKey    string    `json:"dedup_key,omitempty"`
	IsDuplicate bool      `json:"is_duplicate"`
	CollectedAt time.Time `json:"collected_at"`
}

// Run is one execution of the audit pipeline.
type Run struct {
	ID          int64      `json:"id"`
	Repo        string     `json:"repo"`
	PRNumber    int        `json:"pr_number,omitempty"`
	HeadSHA     string     `json:"head_sha"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ServicesRun []Source   `json:"services_run"`
	Status      RunStatus  `json:"status"`
}

// ProcessedFinding is a review-bot finding in the task pipeline. It carries
// the classifier verdict, duplicate linkage and task state.
type ProcessedFinding struct {
	ID               int64      `json:"id"`
	Source           Source     `json:"source"`
	SourceID         string     `json:"source_id"`
	PRNumber         int        `json:"pr_number,omitempty"`
	Path             string     `json:"path,omitempty"`
	Line             int        `json:"line,omitempty"`
	Severity         Severity   `json:"severity"`
	OriginalSeverity Severity   `json:"original_severity"`
	Category         Category   `json:"category"`
	Description      string     `json:"description"`
	IsFalsePositive  bool       `json:"is_false_positive"`
	FPReason         string     `json:"fp_reason,omitempty"`
	IsDuplicate      bool       `json:"is_duplicate"`
	DuplicateOf      int64      `json:"duplicate_of,omitempty"` // 0 when canonical
	TaskID           string     `json:"task_id,omitempty"`
	TaskCreated      bool       `json:"task_created"`
	Dispatched       bool       `json:"dispatched"`
	VerifiedBy       string     `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TaskLogEntry is an append-only record of one emitted task.
type TaskLogEntry struct {
	ID          int64     `json:"id"`
	FindingID   int64     `json:"finding_id"`
	TaskID      string    `json:"task_id"`
	TaskRef     string    `json:"task_ref,omitempty"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	CreatedAt   time.Time `json:"created_at"`
}

// DedupKey derives the location key used to cluster findings across sources.
// Findings without both a path and a positive line get an empty key and are
// never deduplicated against each other.
func DedupKey(path string, line int) string {
	if path == "" || line <= 0 {
		return ""
	}
	return path + ":" + strconv.Itoa(line)
}
