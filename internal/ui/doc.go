// Package ui renders the static terminal views of the sheepd CLI with lipgloss.
//
// [RenderStatus] prints the cache summary for `sheepd cache status` and `sheepd status`,
// [RenderProgress] prints one line per [tasks.ProgressUpdate] during `sheepd sync`
// and `sheepd votes flush`.
//
// Colors come from a single [Palette]; lipgloss drops them when stdout is not a terminal.
package ui
