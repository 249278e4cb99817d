package parse

import (
	"fmt"
	"sort"

	"github.com/segmentio/encoding/json"

	"github.com/roach88/filingindex/internal/model"
)

type factDoc struct {
	Facts map[string]struct {
		Dimensions struct {
			Language string `json:"language"`
		} `json:"dimensions"`
	} `json:"facts"`
}

// ParseFactLanguages tallies the language dimension of every fact of an
// xbrl-json report. Facts without a language are counted in the report
// total only. Results are ordered by language code.
func ParseFactLanguages(data []byte) ([]model.InferredLanguage, error) {
	var doc factDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse xbrl-json: %w", err)
	}
	counts := map[string]int{}
	for _, f := range doc.Facts {
		if lang := f.Dimensions.Language; lang != "" {
			counts[lang]++
		}
	}

	out := make([]model.InferredLanguage, 0, len(counts))
	for lang, n := range counts {
		out = append(out, model.InferredLanguage{
			Lang:          lang,
			LangName:      LanguageName(lang),
			FactsInLang:   n,
			FactsInReport: len(doc.Facts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lang < out[j].Lang })
	return out, nil
}
