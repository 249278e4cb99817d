// Package dedup tags filings that upstream resubmitted under the same
// accession number. Rows are flagged, never deleted.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roach88/filingindex/internal/store"
)

// Policy picks the row of a duplicate group that stays untagged.
type Policy int

const (
	// KeepLatest keeps the highest filing id, the resubmission in the
	// most recent feed.
	KeepLatest Policy = iota
	// KeepEarliest keeps the lowest filing id.
	KeepEarliest
)

func (p Policy) String() string {
	if p == KeepEarliest {
		return "keep-earliest"
	}
	return "keep-latest"
}

// ParsePolicy resolves a policy name. Empty selects KeepLatest.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "keep-latest", "latest":
		return KeepLatest, nil
	case "keep-earliest", "earliest":
		return KeepEarliest, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q", s)
}

// Result reports one tagging pass.
type Result struct {
	Groups int
	Tagged int64
}

// Select returns the filing ids to tag among candidates, one group per
// accession number.
func Select(candidates []store.DuplicateCandidate, policy Policy) ([]int64, int) {
	groups := map[string]bool{}
	var ids []int64
	for _, c := range candidates {
		groups[c.AccessionNumber] = true
		keep := c.MaxFilingID
		if policy == KeepEarliest {
			keep = c.MinFilingID
		}
		if c.FilingID != keep {
			ids = append(ids, c.FilingID)
		}
	}
	return ids, len(groups)
}

// Tag flags duplicate filings and their files in one transaction. A
// second run without new resubmissions tags nothing.
func Tag(ctx context.Context, st *store.Store, policy Policy, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	candidates, err := st.DuplicateCandidates(ctx)
	if err != nil {
		return Result{}, err
	}
	ids, groups := Select(candidates, policy)
	res := Result{Groups: groups}
	if len(ids) == 0 {
		logger.Info("no duplicate filings detected")
		return res, nil
	}

	err = st.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.MarkDuplicates(ctx, ids)
		res.Tagged = n
		return err
	})
	if err != nil {
		return Result{Groups: groups}, fmt.Errorf("tag duplicates: %w", err)
	}
	logger.Info("tagged duplicate filings",
		"policy", policy.String(),
		"groups", humanize.Comma(int64(groups)),
		"filings", humanize.Comma(res.Tagged))
	return res, nil
}
