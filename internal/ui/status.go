package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/sheepd/internal/formatter"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/tasks"
)

// RenderState colors a sync state: green when idle or downloading, orange when paused, red on error.
func RenderState(s models.SyncState) string {
	text := s.String()
	switch s.Status {
	case models.StatusError:
		return styles.err.Render(text)
	case models.StatusPaused:
		return styles.warn.Render(text)
	default:
		return styles.ok.Render(text)
	}
}

func stateOf(snap models.StatusSnapshot) models.SyncState {
	switch snap.State {
	case models.StatusDownloading.String():
		return models.Downloading(snap.Current, snap.Total)
	case models.StatusPaused.String():
		return models.Paused()
	case models.StatusError.String():
		return models.Failed(snap.Message)
	default:
		return models.Idle()
	}
}

// RenderStatus renders the cache summary printed by `cache status`.
//
// entries may be nil when only the snapshot is known, e.g. for a remote agent.
func RenderStatus(snap models.StatusSnapshot, entries []models.CacheEntry) string {
	var b strings.Builder

	b.WriteString(styles.title.Render("sheepd"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "State:   %s\n", RenderState(stateOf(snap)))
	fmt.Fprintf(&b, "Cache:   %s of %s (%d entries)\n",
		formatter.FormatBytes(snap.CacheBytes), formatter.FormatBytes(snap.BudgetBytes), snap.CacheCount)
	if snap.BudgetBytes > 0 && snap.CacheBytes > snap.BudgetBytes {
		b.WriteString(styles.warn.Render("Cache is over budget; eviction runs after the next cycle"))
		b.WriteString("\n")
	}
	if snap.Queued > 0 {
		fmt.Fprintf(&b, "Queued:  %d\n", snap.Queued)
	}
	if !snap.NextSyncAt.IsZero() {
		fmt.Fprintf(&b, "Next:    %s\n", snap.NextSyncAt.Local().Format(time.DateTime))
	}

	if entries != nil {
		free, gold := countTiers(entries)
		fmt.Fprintf(&b, "Tiers:   free %d, gold %d\n", free, gold)
	}

	b.WriteString("\n")
	b.WriteString(styles.help.Render("sheepd cache export --format markdown for a full listing"))
	return b.String()
}

func countTiers(entries []models.CacheEntry) (free, gold int) {
	for _, e := range entries {
		if e.Tier == models.TierGold {
			gold++
		} else {
			free++
		}
	}
	return free, gold
}

// RenderProgress formats one progress update as a single line.
func RenderProgress(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.PhaseState:
		if s, ok := u.Data.(models.SyncState); ok && s.Status == models.StatusError {
			return styles.err.Render(u.Message)
		}
	case tasks.PhaseCommit, tasks.PhaseVoteFlush:
		if strings.Contains(u.Message, "✗") {
			return styles.err.Render(u.Message)
		}
		return styles.ok.Render(u.Message)
	case tasks.PhaseEvict:
		return styles.warn.Render(u.Message)
	}
	return u.Message
}

// RenderError styles an error message.
func RenderError(err error) string {
	return styles.err.Render(fmt.Sprintf("Error: %v", err))
}
