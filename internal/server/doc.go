// Package server serves the agent's status endpoint and its sync controls.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Routes
//
//	GET  /status       → JSON [models.StatusSnapshot] from a [StatusSource]
//	GET  /metrics      → Prometheus exposition
//	POST /sync/pause   → [SyncControl.Pause]
//	POST /sync/resume  → [SyncControl.Resume]
//	POST /sync/now     → [SyncControl.SyncNow]
//
// Control requests answer 202 once the command is posted to the engine.
// [NewStatusServer] wires every route behind [Recoverer] and [RequestLogger].
// [HTTPServer] owns the listener and shuts down when its context ends.
package server
