// Package models defines domain entities for the sheepd sync agent.
//
// The package contains three groups of types:
//
// 1. Catalog data: immutable descriptions of remote content
//   - [ContentItem] : one sheep with its composite key ([ContentItem.FullID]) and tier
//
// 2. Local state: entries persisted by the content store and repositories
//   - [CacheEntry] : a downloaded item with size and last access time
//   - [EntryStats] : optional play and rating statistics
//   - [VoteRecord] : a vote waiting in the offline queue
//
// 3. Engine state: snapshots observed by the CLI and status server
//   - [SyncState] : Idle, Downloading(current, total), Paused or Error(message)
//   - [StatusSnapshot] : the JSON form served at /status
package models
