package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangsam/codeaudit/schema"
)

// GetStatus returns status information about the store.
func (s *SQLStore) GetStatus(ctx context.Context) (schema.StoreStatus, error) {
	status := schema.StoreStatus{
		Backend:    string(s.backend),
		Connected:  s.db != nil,
		TableSizes: make(map[string]int64),
	}
	if s.db == nil {
		return status, nil
	}

	for _, table := range allTables {
		var count int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return status, s.fail("status", fmt.Errorf("failed to get count for table %s: %w", table, err))
		}
		status.TableSizes[table] = count
	}
	status.TotalRuns = status.TableSizes[runsTable]

	last, err := s.LatestRun(ctx, false)
	switch {
	case err == nil:
		status.LastRunID = last.ID
		status.LastRunTime = last.StartedAt
		status.LastRunStatus = last.Status
	case !errors.Is(err, ErrNotFound):
		return status, err
	}

	running := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = ?`, runsTable)
	if err := s.db.QueryRowContext(ctx, s.rebind(running), string(schema.RunRunning)).Scan(&status.RunningRuns); err != nil {
		return status, s.fail("status", err)
	}

	pending := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_false_positive = 0 AND is_duplicate = 0 AND task_created = 0`, processedTable)
	if err := s.db.QueryRowContext(ctx, pending).Scan(&status.PendingTasks); err != nil {
		return status, s.fail("status", err)
	}

	return status, nil
}

// Snapshot dumps every relation for a backup.
func (s *SQLStore) Snapshot(ctx context.Context) (schema.Snapshot, error) {
	snap := schema.Snapshot{TakenAt: s.now().UTC()}
	var err error

	if snap.Runs, err = s.allRuns(ctx); err != nil {
		return snap, s.fail("snapshot runs", err)
	}
	findingsQuery := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, findingColumns, findingsTable)
	if snap.Findings, err = s.queryFindings(ctx, findingsQuery); err != nil {
		return snap, s.fail("snapshot findings", err)
	}
	processedQuery := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, processedColumns, processedTable)
	if snap.ProcessedFindings, err = s.queryProcessed(ctx, s.db, processedQuery); err != nil {
		return snap, s.fail("snapshot processed findings", err)
	}
	taskLogQuery := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, taskLogColumns, taskLogTable)
	if snap.TaskLog, err = s.queryTaskLog(ctx, taskLogQuery); err != nil {
		return snap, s.fail("snapshot task log", err)
	}
	if snap.Runs == nil {
		snap.Runs = []schema.Run{}
	}
	return snap, nil
}

// Purge deletes every row in every relation in a single transaction.
func (s *SQLStore) Purge(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("purge", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range allTables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return s.fail("purge", fmt.Errorf("failed to clear table %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("purge", err)
	}
	return nil
}
