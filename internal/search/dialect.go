package search

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/filingindex/internal/model"
)

// Dialect selects the SQL flavour a query is rendered for.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
	MSSQL
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	case MSSQL:
		return "mssql"
	}
	return "unknown"
}

// ParseDialect resolves a dialect name. Empty selects SQLite.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	}
	return 0, model.Errorf(model.ErrCodeBadConnectionParameters, "unknown dialect %q", s)
}

func (d Dialect) placeholders() sq.PlaceholderFormat {
	switch d {
	case Postgres:
		return sq.Dollar
	case MSSQL:
		return sq.AtP
	}
	return sq.Question
}

// random returns the random ordering function, or "" when the dialect has
// none usable here.
func (d Dialect) random() string {
	switch d {
	case SQLite, Postgres:
		return "RANDOM()"
	}
	return ""
}

// sample orders b randomly. Postgres rejects ORDER BY terms outside a
// DISTINCT select list, so the distinct rows are wrapped first.
func (d Dialect) sample(b sq.SelectBuilder) sq.SelectBuilder {
	if d == Postgres {
		return sq.Select("*").FromSelect(b, "r").OrderBy(d.random())
	}
	return b.OrderBy(d.random())
}

// limit applies a row limit. SQL Server has no LIMIT clause; its
// OFFSET/FETCH form needs the ORDER BY every query carries.
func (d Dialect) limit(b sq.SelectBuilder, n uint64) sq.SelectBuilder {
	if d == MSSQL {
		return b.Suffix(fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n))
	}
	return b.Limit(n)
}
