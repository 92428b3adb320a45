package core

import (
	"context"

	"github.com/huangsam/codeaudit/internal/contract"
)

// Deduplicate marks every located finding of the run whose path:line was
// already reported, by any source, as a duplicate. The lowest ID in each
// group stays canonical. Findings without a location are never touched and
// other runs are never read. It returns the number of newly marked rows, so
// a second pass returns 0.
func Deduplicate(ctx context.Context, st contract.FindingStore, runID int64) (int, error) {
	findings, err := st.LocatedFindings(ctx, runID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(findings))
	var dups []int64
	for _, f := range findings {
		if _, ok := seen[f.DedupKey]; ok {
			dups = append(dups, f.ID)
			continue
		}
		seen[f.DedupKey] = struct{}{}
	}
	if len(dups) == 0 {
		return 0, nil
	}
	return st.MarkFindingDuplicates(ctx, runID, dups)
}
