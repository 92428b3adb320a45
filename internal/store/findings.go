package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

const findingColumns = `id, run_id, source, severity, path, line, description, category, rule_id, dedup_key, is_duplicate, collected_at`

// InsertFinding stores one normalized finding of a run. The store derives the
// dedup key and truncates the description.
func (s *SQLStore) InsertFinding(ctx context.Context, f schema.NewFinding) (int64, error) {
	if f.Severity == "" {
		f.Severity = schema.SeverityInfo
	}
	if f.Category == "" {
		f.Category = schema.CategoryGeneral
	}
	if f.Line < 0 {
		f.Line = 0
	}
	query := fmt.Sprintf(`INSERT INTO %s (run_id, source, severity, path, line, description, category, rule_id, dedup_key, is_duplicate, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, findingsTable)
	id, err := s.insertID(ctx, s.db, query,
		f.RunID, string(f.Source), string(f.Severity), f.Path, f.Line,
		contract.TruncateRunes(f.Description, contract.DescriptionMaxRunes),
		string(f.Category), f.RuleID, schema.DedupKey(f.Path, f.Line), boolInt(f.IsDuplicate),
		formatTime(s.now()))
	if err != nil {
		return 0, s.fail("insert finding", err)
	}
	return id, nil
}

// ListFindings returns a run's findings, most severe first, then by ID.
func (s *SQLStore) ListFindings(ctx context.Context, filter schema.FindingFilter) ([]schema.Finding, error) {
	minimum := filter.MinSeverity
	if minimum == "" {
		minimum = schema.SeverityInfo
	}
	inList, args := severitiesAtLeast(minimum)

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM %s WHERE run_id = ? AND severity IN %s`, findingColumns, findingsTable, inList)
	args = append([]any{filter.RunID}, args...)
	if !filter.IncludeDuplicates {
		b.WriteString(` AND is_duplicate = 0`)
	}
	fmt.Fprintf(&b, ` ORDER BY %s DESC, id ASC`, severityRankSQL)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	findings, err := s.queryFindings(ctx, b.String(), args...)
	if err != nil {
		return nil, s.fail("list findings", err)
	}
	return findings, nil
}

// LocatedFindings returns the run's findings that carry a dedup key, by ID.
func (s *SQLStore) LocatedFindings(ctx context.Context, runID int64) ([]schema.Finding, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = ? AND dedup_key <> '' ORDER BY id`, findingColumns, findingsTable)
	findings, err := s.queryFindings(ctx, query, runID)
	if err != nil {
		return nil, s.fail("located findings", err)
	}
	return findings, nil
}

// MarkFindingDuplicates flags the given findings of the run. Flags are only
// ever set, so repeated calls change nothing.
func (s *SQLStore) MarkFindingDuplicates(ctx context.Context, runID int64, ids []int64) (int, error) {
	query := s.rebind(fmt.Sprintf(`UPDATE %s SET is_duplicate = 1 WHERE id = ? AND run_id = ? AND is_duplicate = 0`, findingsTable))
	marked := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, query, id, runID)
		if err != nil {
			return marked, s.fail("mark duplicates", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return marked, s.fail("mark duplicates", err)
		}
		marked += int(n)
	}
	return marked, nil
}

func (s *SQLStore) queryFindings(ctx context.Context, query string, args ...any) ([]schema.Finding, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	findings := []schema.Finding{}
	for rows.Next() {
		var f schema.Finding
		var source, severity, category, collectedAt string
		var dup int
		if err := rows.Scan(&f.ID, &f.RunID, &source, &severity, &f.Path, &f.Line, &f.Description,
			&category, &f.RuleID, &f.DedupKey, &dup, &collectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Source = schema.Source(source)
		f.Severity = schema.Severity(severity)
		f.Category = schema.Category(category)
		f.IsDuplicate = dup != 0
		if f.CollectedAt, err = parseTime(collectedAt); err != nil {
			return nil, fmt.Errorf("failed to parse collected_at: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}
	return findings, nil
}
