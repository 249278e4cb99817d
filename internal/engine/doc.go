// Package engine runs the top-level synchronization tasks.
//
// Each task runs under its own tracker, so a second invocation against the
// same database is rejected while the first is open:
//
//   - SyncFeeds diffs the monthly listing against the stored feeds and
//     merges every new or modified feed, oldest first, followed by the
//     cumulative latest-filings feed.
//   - TagDuplicates flags resubmitted filings.
//   - ReconcileFilers inserts new filers and refreshes renamed ones.
//   - SyncCatalog adds new ESEF filings and entities.
//   - RefreshTables reloads the CIK ticker mapping.
//
// SyncSEC chains the first three the way a scheduled run does.
//
// Feed failures are per feed: the feed's transaction rolls back, the
// tracker records the failure and the remaining feeds still load. Merge
// telemetry is flushed to processing_log whatever the outcome.
package engine
