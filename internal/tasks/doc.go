// Package tasks runs the long-lived work of the agent: catalog sync and vote submission.
//
// # Sync Engine
//
// [Engine] keeps the content store in line with the remote catalog. One cycle:
//
//  1. Fetch the catalog ([services.Catalog])
//  2. Diff it against the store and queue the missing items
//  3. For each item: check disk headroom, download to staging, verify the
//     size, commit
//  4. Evict to the budget, broadcast a cache update once, go Idle and
//     schedule the next cycle
//
// States move Idle → Downloading(i,n) → Idle. Paused can be entered from any
// state and keeps the queue; an interrupted download goes back to the head of
// the queue. Cycle failures enter Error and retry after an exponential
// [Backoff]; low disk space enters Error("low disk space") and retries the
// kept queue after a fixed delay.
//
// A single goroutine ([Engine.Run]) owns the queue and timer. Commands are
// posted on a channel; [Engine.State] and [Engine.Snapshot] read under a lock.
// [Engine.RunOnce] drives one cycle synchronously for the CLI.
//
// # Vote Submitter
//
// [VoteSubmitter] asks the renderer what is playing over the event bus and
// submits the vote. Failed votes go to an offline queue file that
// [VoteSubmitter.FlushOfflineQueue] drains with a bounded errgroup paced by a
// rate limiter.
//
// # Progress Reporting
//
// Both send [ProgressUpdate] values on an optional channel. Updates use select
// with default so reporting never blocks the engine.
package tasks
