package parse

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/roach88/filingindex/internal/model"
)

var languageNamer = display.English.Languages()

// LanguageName returns the English name of a language code, or "" when
// the code is not a known language.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return languageNamer.Name(tag)
}

// DeclaredLanguages maps catalog language codes to rows with display
// names, preserving order and dropping blanks and repeats.
func DeclaredLanguages(codes []string) []model.FilingLang {
	out := []model.FilingLang{}
	seen := map[string]bool{}
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, model.FilingLang{Lang: c, LangName: LanguageName(c)})
	}
	return out
}
