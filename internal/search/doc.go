// Package search composes one filtered query over either indexed schema
// from a sparse set of criteria.
//
// Every criterion given is ANDed; a comma list inside a criterion is ORed.
// Criteria that do not apply to the selected schema, or that a more
// specific criterion supersedes, are dropped with a warning. Queries are
// built with squirrel and scanned with sqlx.
package search
