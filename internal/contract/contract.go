// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/codeaudit/schema"
)

// RunContext is what every Collector receives for one audit run.
type RunContext struct {
	RunID    int64
	Repo     string // owner/name
	PRNumber int    // 0 when auditing a branch
	HeadSHA  string
}

// Collector adapts one upstream service into normalized findings.
type Collector interface {
	// Source names the upstream service.
	Source() schema.Source

	// Collect fetches the upstream findings for the run and stores them.
	// It returns the number of findings inserted into the run.
	Collect(ctx context.Context, rc RunContext) (int, error)
}

// RunStore tracks audit runs.
type RunStore interface {
	// BeginRun creates a run in the running state and returns its ID.
	BeginRun(ctx context.Context, repo string, prNumber int, headSHA string, startedAt time.Time) (int64, error)

	// SealRun marks the run complete. A sealed run is never modified again.
	SealRun(ctx context.Context, runID int64, completedAt time.Time, servicesRun []schema.Source) error

	GetRun(ctx context.Context, runID int64) (schema.Run, error)

	// LatestRun returns the run with the highest ID, optionally restricted to complete runs.
	LatestRun(ctx context.Context, onlyComplete bool) (schema.Run, error)

	// StaleRuns returns runs still running that started before the cutoff.
	StaleRuns(ctx context.Context, startedBefore time.Time) ([]schema.Run, error)
}

// FindingStore holds the per-run normalized findings.
type FindingStore interface {
	InsertFinding(ctx context.Context, f schema.NewFinding) (int64, error)
	ListFindings(ctx context.Context, filter schema.FindingFilter) ([]schema.Finding, error)

	// LocatedFindings returns the run's findings with a non-empty dedup key, ordered by ID.
	LocatedFindings(ctx context.Context, runID int64) ([]schema.Finding, error)

	// MarkFindingDuplicates sets is_duplicate on the given findings of the run.
	// It returns how many rows changed from 0 to 1.
	MarkFindingDuplicates(ctx context.Context, runID int64, ids []int64) (int, error)
}

// TaskStore holds the task pipeline: processed findings and the task log.
type TaskStore interface {
	// UpsertProcessed inserts the record unless (source, source_id) exists.
	// The existing record is left untouched and inserted is false.
	UpsertProcessed(ctx context.Context, pf schema.NewProcessedFinding) (id int64, inserted bool, err error)

	// CanonicalProcessed finds the lowest-ID accepted, non-duplicate record of the
	// source with the same path and description, other than excludeID.
	CanonicalProcessed(ctx context.Context, source schema.Source, path, description string, excludeID int64) (int64, bool, error)

	MarkProcessedDuplicate(ctx context.Context, id, canonicalID int64) error
	GetProcessed(ctx context.Context, id int64) (schema.ProcessedFinding, error)
	ListProcessed(ctx context.Context, filter schema.ProcessedFilter) ([]schema.ProcessedFinding, error)

	// TaskCandidates returns actionable records without a task, most severe first.
	TaskCandidates(ctx context.Context, minSeverity schema.Severity, limit int) ([]schema.ProcessedFinding, error)

	// MarkTaskCreated sets task_created and appends the task log entry in one
	// transaction. It returns false when the record was already marked or is a
	// false positive.
	MarkTaskCreated(ctx context.Context, mark schema.TaskMark) (bool, error)

	MarkDispatched(ctx context.Context, taskIDs []string) error
	ListTaskLog(ctx context.Context, limit int) ([]schema.TaskLogEntry, error)
	Verify(ctx context.Context, v schema.Verification) error

	// NextTaskSequence returns a new, never reused, positive sequence number.
	NextTaskSequence(ctx context.Context) (int64, error)
}

// Store is the full finding store.
type Store interface {
	RunStore
	FindingStore
	TaskStore

	// Snapshot dumps every relation.
	Snapshot(ctx context.Context) (schema.Snapshot, error)

	// Purge deletes every row of every relation.
	Purge(ctx context.Context) error

	GetStatus(ctx context.Context) (schema.StoreStatus, error)
	Backend() schema.DatabaseBackend
	Close() error
}

// TaskClaim is the result of a successful task allocation.
type TaskClaim struct {
	ID  string
	Ref string // optional external reference
}

// TaskAllocator claims an external task ID for a finding.
type TaskAllocator interface {
	Claim(ctx context.Context, pf schema.ProcessedFinding) (TaskClaim, error)
}

// TaskDispatcher hands created tasks to whatever works on them.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskIDs []string) error
}

// RepoInspector reads metadata from the local checkout.
type RepoInspector interface {
	// HeadSHA returns the current HEAD commit hash.
	HeadSHA(ctx context.Context, repoPath string) (string, error)

	// Slug returns owner/name parsed from the origin remote.
	Slug(ctx context.Context, repoPath string) (string, error)
}
