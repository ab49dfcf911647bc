// Package repositories implements SQLite persistence for cache statistics.
//
// The content store on disk is the source of truth for what is cached; these
// tables only enrich it.
//
// Key Implementations:
//   - [EntryStatsRepository] : download time, play count, last play and rating per entry
//   - [DownloadFailureRepository] : items that keep failing to download, with the last error
//
// Both tables are keyed by composite key ("{generation}={id}={first}={last}") and
// written with upserts, so replaying an event is harmless.
package repositories
