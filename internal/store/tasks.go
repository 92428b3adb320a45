package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

const processedColumns = `id, source, source_id, pr_number, path, line, severity, original_severity, category, description,
	is_false_positive, fp_reason, is_duplicate, duplicate_of, task_id, task_created, dispatched, verified_by, verified_at, created_at`

const taskLogColumns = `id, finding_id, task_id, task_ref, description, severity, created_at`

// UpsertProcessed inserts a task pipeline record unless (source, source_id)
// already exists, in which case the existing record is left untouched.
func (s *SQLStore) UpsertProcessed(ctx context.Context, pf schema.NewProcessedFinding) (int64, bool, error) {
	if pf.Severity == "" {
		pf.Severity = schema.SeverityInfo
	}
	if pf.OriginalSeverity == "" {
		pf.OriginalSeverity = pf.Severity
	}
	if pf.Category == "" {
		pf.Category = schema.CategoryGeneral
	}

	verb, suffix := "INSERT INTO", ""
	switch s.backend {
	case schema.MySQLBackend:
		verb = "INSERT IGNORE INTO"
	default:
		suffix = " ON CONFLICT (source, source_id) DO NOTHING"
	}
	query := fmt.Sprintf(`%s %s (source, source_id, pr_number, path, line, severity, original_severity, category, description,
		is_false_positive, fp_reason, is_duplicate, task_id, task_created, dispatched, verified_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', 0, 0, '', ?)%s`, verb, processedTable, suffix)

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		string(pf.Source), pf.SourceID, pf.PRNumber, pf.Path, pf.Line,
		string(pf.Severity), string(pf.OriginalSeverity), string(pf.Category),
		contract.TruncateRunes(pf.Description, contract.DescriptionMaxRunes),
		boolInt(pf.IsFalsePositive), pf.FPReason, formatTime(s.now()))
	if err != nil {
		return 0, false, s.fail("upsert processed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, s.fail("upsert processed", err)
	}

	var id int64
	lookup := fmt.Sprintf(`SELECT id FROM %s WHERE source = ? AND source_id = ?`, processedTable)
	if err := s.db.QueryRowContext(ctx, s.rebind(lookup), string(pf.Source), pf.SourceID).Scan(&id); err != nil {
		return 0, false, s.fail("upsert processed", err)
	}
	return id, n > 0, nil
}

// CanonicalProcessed finds the lowest-ID accepted canonical record of the
// source with the same path and description.
func (s *SQLStore) CanonicalProcessed(ctx context.Context, source schema.Source, path, description string, excludeID int64) (int64, bool, error) {
	query := fmt.Sprintf(`SELECT id FROM %s
		WHERE source = ? AND path = ? AND description = ? AND is_false_positive = 0 AND is_duplicate = 0 AND id <> ?
		ORDER BY id LIMIT 1`, processedTable)
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), string(source), path,
		contract.TruncateRunes(description, contract.DescriptionMaxRunes), excludeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, s.fail("canonical processed", err)
	}
	return id, true, nil
}

// MarkProcessedDuplicate links a record to its canonical record. The target
// must itself be canonical.
func (s *SQLStore) MarkProcessedDuplicate(ctx context.Context, id, canonicalID int64) error {
	if id == canonicalID {
		return s.fail("mark processed duplicate", fmt.Errorf("record %d cannot duplicate itself", id))
	}
	canonical, err := s.GetProcessed(ctx, canonicalID)
	if err != nil {
		return err
	}
	if canonical.IsDuplicate {
		return s.fail("mark processed duplicate", fmt.Errorf("record %d is itself a duplicate of %d", canonicalID, canonical.DuplicateOf))
	}

	query := fmt.Sprintf(`UPDATE %s SET is_duplicate = 1, duplicate_of = ? WHERE id = ?`, processedTable)
	res, err := s.db.ExecContext(ctx, s.rebind(query), canonicalID, id)
	if err != nil {
		return s.fail("mark processed duplicate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("mark processed duplicate", err)
	}
	if n == 0 {
		return s.fail("mark processed duplicate", fmt.Errorf("finding %d: %w", id, ErrNotFound))
	}
	return nil
}

// GetProcessed returns one task pipeline record.
func (s *SQLStore) GetProcessed(ctx context.Context, id int64) (schema.ProcessedFinding, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, processedColumns, processedTable)
	pf, err := scanProcessed(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return pf, s.fail("get processed", fmt.Errorf("finding %d: %w", id, ErrNotFound))
	}
	if err != nil {
		return pf, s.fail("get processed", err)
	}
	return pf, nil
}

// ListProcessed returns task pipeline records, most severe first.
func (s *SQLStore) ListProcessed(ctx context.Context, filter schema.ProcessedFilter) ([]schema.ProcessedFinding, error) {
	minimum := filter.MinSeverity
	if minimum == "" {
		minimum = schema.SeverityInfo
	}
	inList, args := severitiesAtLeast(minimum)

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM %s WHERE severity IN %s`, processedColumns, processedTable, inList)
	if filter.OnlyActionable {
		b.WriteString(` AND is_false_positive = 0 AND is_duplicate = 0`)
	}
	if filter.OnlyWithoutTask {
		b.WriteString(` AND task_created = 0`)
	}
	fmt.Fprintf(&b, ` ORDER BY %s DESC, id ASC`, severityRankSQL)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	out, err := s.queryProcessed(ctx, s.db, b.String(), args...)
	if err != nil {
		return nil, s.fail("list processed", err)
	}
	return out, nil
}

// TaskCandidates returns actionable records without a task, ordered by
// severity rank then ID.
func (s *SQLStore) TaskCandidates(ctx context.Context, minSeverity schema.Severity, limit int) ([]schema.ProcessedFinding, error) {
	return s.ListProcessed(ctx, schema.ProcessedFilter{
		MinSeverity:     minSeverity,
		OnlyActionable:  true,
		OnlyWithoutTask: true,
		Limit:           limit,
	})
}

// MarkTaskCreated sets task_created and appends the task log entry in one
// transaction. The guard on task_created and is_false_positive makes the
// mark at-most-once even with concurrent emitters.
func (s *SQLStore) MarkTaskCreated(ctx context.Context, mark schema.TaskMark) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, s.fail("mark task", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := fmt.Sprintf(`UPDATE %s SET task_created = 1, task_id = ?
		WHERE id = ? AND task_created = 0 AND is_false_positive = 0`, processedTable)
	res, err := tx.ExecContext(ctx, s.rebind(update), mark.TaskID, mark.FindingID)
	if err != nil {
		return false, s.fail("mark task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("mark task", err)
	}
	if n == 0 {
		return false, nil
	}

	createdAt := mark.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	insert := fmt.Sprintf(`INSERT INTO %s (finding_id, task_id, task_ref, description, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, taskLogTable)
	if _, err := s.insertID(ctx, tx, insert, mark.FindingID, mark.TaskID, mark.TaskRef,
		contract.TruncateRunes(mark.Description, contract.DescriptionMaxRunes),
		string(mark.Severity), formatTime(createdAt)); err != nil {
		return false, s.fail("mark task", err)
	}

	if err := tx.Commit(); err != nil {
		return false, s.fail("mark task", err)
	}
	return true, nil
}

// MarkDispatched records that the tasks were handed to the dispatcher.
func (s *SQLStore) MarkDispatched(ctx context.Context, taskIDs []string) error {
	query := s.rebind(fmt.Sprintf(`UPDATE %s SET dispatched = 1 WHERE task_id = ? AND task_created = 1`, processedTable))
	for _, id := range taskIDs {
		if _, err := s.db.ExecContext(ctx, query, id); err != nil {
			return s.fail("mark dispatched", err)
		}
	}
	return nil
}

// ListTaskLog returns task log entries, newest first.
func (s *SQLStore) ListTaskLog(ctx context.Context, limit int) ([]schema.TaskLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC`, taskLogColumns, taskLogTable)
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	entries, err := s.queryTaskLog(ctx, query, args...)
	if err != nil {
		return nil, s.fail("list task log", err)
	}
	return entries, nil
}

// Verify applies a manual verdict. A record that already has a task cannot
// be turned into a false positive. When a canonical record becomes a false
// positive, its lowest-ID accepted duplicate takes its place and the other
// duplicates are re-pointed at it.
func (s *SQLStore) Verify(ctx context.Context, v schema.Verification) error {
	pf, err := s.GetProcessed(ctx, v.FindingID)
	if err != nil {
		return err
	}
	if v.FalsePositive && pf.TaskCreated {
		return s.fail("verify", fmt.Errorf("finding %d already has task %s and cannot be marked false positive", pf.ID, pf.TaskID))
	}
	reason := v.Reason
	if v.FalsePositive && reason == "" {
		reason = "manual"
	}
	if !v.FalsePositive {
		reason = ""
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("verify", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`UPDATE %s SET is_false_positive = ?, fp_reason = ?, verified_by = ?, verified_at = ? WHERE id = ?`, processedTable)
	if v.FalsePositive {
		query += ` AND task_created = 0`
	}
	res, err := tx.ExecContext(ctx, s.rebind(query), boolInt(v.FalsePositive), reason, v.VerifiedBy,
		formatTime(v.VerifiedAt), v.FindingID)
	if err != nil {
		return s.fail("verify", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("verify", err)
	}
	if n == 0 {
		return s.fail("verify", fmt.Errorf("finding %d gained a task concurrently", v.FindingID))
	}

	if v.FalsePositive && !pf.IsDuplicate {
		if err := s.promoteDuplicate(ctx, tx, pf.ID); err != nil {
			return s.fail("verify", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail("verify", err)
	}
	return nil
}

// promoteDuplicate makes the lowest-ID accepted duplicate of canonicalID
// canonical and re-points the remaining duplicates at it.
func (s *SQLStore) promoteDuplicate(ctx context.Context, tx *sql.Tx, canonicalID int64) error {
	pick := fmt.Sprintf(`SELECT id FROM %s WHERE duplicate_of = ? AND is_false_positive = 0 ORDER BY id LIMIT 1`, processedTable)
	var promoted int64
	err := tx.QueryRowContext(ctx, s.rebind(pick), canonicalID).Scan(&promoted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	promote := fmt.Sprintf(`UPDATE %s SET is_duplicate = 0, duplicate_of = NULL WHERE id = ?`, processedTable)
	if _, err := tx.ExecContext(ctx, s.rebind(promote), promoted); err != nil {
		return err
	}
	repoint := fmt.Sprintf(`UPDATE %s SET duplicate_of = ? WHERE duplicate_of = ?`, processedTable)
	if _, err := tx.ExecContext(ctx, s.rebind(repoint), promoted, canonicalID); err != nil {
		return err
	}
	return nil
}

// NextTaskSequence allocates the next local task number.
func (s *SQLStore) NextTaskSequence(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (claimed_at) VALUES (?)`, taskSequenceTable)
	id, err := s.insertID(ctx, s.db, query, formatTime(s.now()))
	if err != nil {
		return 0, s.fail("next task sequence", err)
	}
	return id, nil
}

func (s *SQLStore) queryProcessed(ctx context.Context, q querier, query string, args ...any) ([]schema.ProcessedFinding, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []schema.ProcessedFinding{}
	for rows.Next() {
		pf, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processed findings: %w", err)
	}
	return out, nil
}

func (s *SQLStore) queryTaskLog(ctx context.Context, query string, args ...any) ([]schema.TaskLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []schema.TaskLogEntry{}
	for rows.Next() {
		var e schema.TaskLogEntry
		var severity, createdAt string
		if err := rows.Scan(&e.ID, &e.FindingID, &e.TaskID, &e.TaskRef, &e.Description, &severity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task log: %w", err)
		}
		e.Severity = schema.Severity(severity)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task log: %w", err)
	}
	return entries, nil
}

func scanProcessed(row rowScanner) (schema.ProcessedFinding, error) {
	var pf schema.ProcessedFinding
	var source, severity, original, category, createdAt string
	var fp, dup, created, dispatched int
	var duplicateOf sql.NullInt64
	var verifiedAt sql.NullString
	if err := row.Scan(&pf.ID, &source, &pf.SourceID, &pf.PRNumber, &pf.Path, &pf.Line, &severity, &original,
		&category, &pf.Description, &fp, &pf.FPReason, &dup, &duplicateOf, &pf.TaskID, &created, &dispatched,
		&pf.VerifiedBy, &verifiedAt, &createdAt); err != nil {
		return pf, err
	}
	pf.Source = schema.Source(source)
	pf.Severity = schema.Severity(severity)
	pf.OriginalSeverity = schema.Severity(original)
	pf.Category = schema.Category(category)
	pf.IsFalsePositive = fp != 0
	pf.IsDuplicate = dup != 0
	pf.DuplicateOf = duplicateOf.Int64
	pf.TaskCreated = created != 0
	pf.Dispatched = dispatched != 0

	var err error
	if pf.VerifiedAt, err = parseNullTime(verifiedAt); err != nil {
		return pf, fmt.Errorf("failed to parse verified_at: %w", err)
	}
	if pf.CreatedAt, err = parseTime(createdAt); err != nil {
		return pf, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return pf, nil
}
