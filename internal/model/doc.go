// Package model holds the record types shared by the feed and catalog
// pipelines, the closed FilingSystem variant and the IndexError taxonomy.
//
// The package has no dependencies on storage or transport so that the
// diff, merge and search packages can share it without import cycles.
package model
