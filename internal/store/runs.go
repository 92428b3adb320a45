package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huangsam/codeaudit/schema"
)

const runColumns = `id, repo, pr_number, head_sha, started_at, completed_at, services_run, status`

// BeginRun creates a new run in the running state and returns its unique ID.
func (s *SQLStore) BeginRun(ctx context.Context, repo string, prNumber int, headSHA string, startedAt time.Time) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (repo, pr_number, head_sha, started_at, services_run, status) VALUES (?, ?, ?, ?, '', ?)`, runsTable)
	id, err := s.insertID(ctx, s.db, query, repo, prNumber, headSHA, formatTime(startedAt), string(schema.RunRunning))
	if err != nil {
		return 0, s.fail("begin run", err)
	}
	return id, nil
}

// SealRun marks a running run complete with the sources that finished.
func (s *SQLStore) SealRun(ctx context.Context, runID int64, completedAt time.Time, servicesRun []schema.Source) error {
	query := fmt.Sprintf(`UPDATE %s SET completed_at = ?, services_run = ?, status = ? WHERE id = ? AND status = ?`, runsTable)
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		formatTime(completedAt), joinSources(servicesRun), string(schema.RunComplete), runID, string(schema.RunRunning))
	if err != nil {
		return s.fail("seal run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("seal run", err)
	}
	if n == 0 {
		return s.fail("seal run", fmt.Errorf("run %d is not running: %w", runID, ErrNotFound))
	}
	return nil
}

// GetRun returns one run by ID.
func (s *SQLStore) GetRun(ctx context.Context, runID int64) (schema.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, runColumns, runsTable)
	run, err := scanRun(s.db.QueryRowContext(ctx, s.rebind(query), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return run, s.fail("get run", fmt.Errorf("run %d: %w", runID, ErrNotFound))
	}
	if err != nil {
		return run, s.fail("get run", err)
	}
	return run, nil
}

// LatestRun returns the run with the highest ID.
func (s *SQLStore) LatestRun(ctx context.Context, onlyComplete bool) (schema.Run, error) {
	var row *sql.Row
	if onlyComplete {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = ? ORDER BY id DESC LIMIT 1`, runColumns, runsTable)
		row = s.db.QueryRowContext(ctx, s.rebind(query), string(schema.RunComplete))
	} else {
		query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT 1`, runColumns, runsTable)
		row = s.db.QueryRowContext(ctx, query)
	}
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return run, s.fail("latest run", fmt.Errorf("no runs recorded: %w", ErrNotFound))
	}
	if err != nil {
		return run, s.fail("latest run", err)
	}
	return run, nil
}

// StaleRuns returns runs still marked running that started before the cutoff.
func (s *SQLStore) StaleRuns(ctx context.Context, startedBefore time.Time) ([]schema.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = ? ORDER BY id`, runColumns, runsTable)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), string(schema.RunRunning))
	if err != nil {
		return nil, s.fail("stale runs", err)
	}
	defer func() { _ = rows.Close() }()

	var stale []schema.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, s.fail("stale runs", err)
		}
		// Compared in Go since text timestamps only sort correctly at equal precision
		if run.StartedAt.Before(startedBefore) {
			stale = append(stale, run)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("stale runs", err)
	}
	return stale, nil
}

// allRuns returns every run ordered by ID.
func (s *SQLStore) allRuns(ctx context.Context) ([]schema.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, runColumns, runsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []schema.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (schema.Run, error) {
	var run schema.Run
	var startedAt, services, status string
	var completedAt sql.NullString
	if err := row.Scan(&run.ID, &run.Repo, &run.PRNumber, &run.HeadSHA, &startedAt, &completedAt, &services, &status); err != nil {
		return run, err
	}
	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return run, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if run.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return run, fmt.Errorf("failed to parse completed_at: %w", err)
	}
	run.ServicesRun = splitSources(services)
	run.Status = schema.RunStatus(status)
	return run, nil
}
