package model

import "strings"

// FilingSystem selects one of the two indexed schemas.
type FilingSystem int

const (
	SEC FilingSystem = iota + 1
	ESEF
)

func (f FilingSystem) String() string {
	switch f {
	case SEC:
		return "sec"
	case ESEF:
		return "esef"
	}
	return "unknown"
}

// ParseFilingSystem resolves a filing system name, case-insensitively.
func ParseFilingSystem(s string) (FilingSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sec":
		return SEC, nil
	case "esef":
		return ESEF, nil
	}
	return 0, Errorf(ErrCodeBadSearchParameter, "filing_system must be one of `esef` or `sec`, got %q", s)
}
