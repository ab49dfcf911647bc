// Package store keeps downloaded sheep on disk and enforces the cache budget.
//
// # Layout
//
//	{root}/sheep/free/   generations below 10000
//	{root}/sheep/gold/   generations 10000 and above
//	{root}/downloads/    staging files for in-progress downloads
//	{root}/lists/        raw catalog documents (optional)
//	{root}/playback.json last-access time per composite key
//
// File names encode the composite key: "248_12345_0_240.avi" is "248=12345=0=240".
//
// # Eviction
//
// [Store.Evict] orders entries by last access time, oldest first, with never played
// entries ahead of everything else, and deletes until the total size fits the budget.
//
// # Staging
//
// Downloads are written to [Store.Stage] and moved into place by [Store.Commit], so a
// partial download never appears as a cache entry.
package store
