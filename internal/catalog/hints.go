package catalog

import (
	"path"
	"sort"

	"github.com/roach88/filingindex/internal/store"
)

type amendKey struct {
	root, pkg, lang string
}

// DetectHints computes the post-merge hints from rows carrying each
// filing's dominant language.
//
// Amended: loadable, not yet flagged filings sharing root, report package
// name and dominant language; all but the highest filing number are
// returned. Multi-language: filings of a root reported in more than one
// dominant language. Filings without an inferred language take part in
// neither.
func DetectHints(rows []store.HintRow) (amended, multiLang []int64) {
	groups := map[amendKey][]store.HintRow{}
	langsByRoot := map[string]map[string]bool{}
	for _, r := range rows {
		if r.Lang == "" {
			continue
		}
		if langsByRoot[r.FilingRoot] == nil {
			langsByRoot[r.FilingRoot] = map[string]bool{}
		}
		langsByRoot[r.FilingRoot][r.Lang] = true

		if !r.IsLoadable || r.IsAmendedHint {
			continue
		}
		k := amendKey{root: r.FilingRoot, pkg: packageName(r.ReportPackage), lang: r.Lang}
		groups[k] = append(groups[k], r)
	}

	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		maxNumber := g[0].FilingNumber
		for _, r := range g[1:] {
			maxNumber = max(maxNumber, r.FilingNumber)
		}
		for _, r := range g {
			if r.FilingNumber != maxNumber {
				amended = append(amended, r.FilingID)
			}
		}
	}

	for _, r := range rows {
		if r.Lang != "" && !r.OtherLangsHint && len(langsByRoot[r.FilingRoot]) > 1 {
			multiLang = append(multiLang, r.FilingID)
		}
	}

	sort.Slice(amended, func(i, j int) bool { return amended[i] < amended[j] })
	sort.Slice(multiLang, func(i, j int) bool { return multiLang[i] < multiLang[j] })
	return amended, multiLang
}

// packageName drops the per-submission directories of a report package
// path so resubmissions of the same package compare equal.
func packageName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}
