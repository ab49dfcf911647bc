package tasks

import (
	"fmt"

	"github.com/desertthunder/sheepd/internal/models"
)

// ProgressUpdate represents a progress event during a sync cycle or vote flush.
//
// Used to send real-time updates to the CLI or status layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	PhaseFetch Phase = iota
	PhaseDiff
	PhaseDownload
	PhaseCommit
	PhaseEvict
	PhaseState
	PhaseVoteFlush
)

func (p Phase) String() string {
	switch p {
	case PhaseFetch:
		return "fetch"
	case PhaseDiff:
		return "diff"
	case PhaseDownload:
		return "download"
	case PhaseCommit:
		return "commit"
	case PhaseEvict:
		return "evict"
	case PhaseState:
		return "state"
	case PhaseVoteFlush:
		return "vote_flush"
	default:
		return ""
	}
}

func fetchUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: PhaseFetch, Step: 1, Total: 1, Message: "Fetching catalog..."}
}

func diffUpdate(catalogSize, missing int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDiff,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Catalog lists %d items, %d not cached", catalogSize, missing),
		Data:    missing,
	}
}

func downloadUpdate(step, total int, item models.ContentItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading %s...", step, total, item.FullID()),
		Data:    item,
	}
}

func committedUpdate(step, total int, item models.ContentItem, size int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseCommit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d bytes)", step, total, item.FullID(), size),
		Data:    item,
	}
}

func failedUpdate(step, total int, item models.ContentItem, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseCommit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, item.FullID(), err),
		Data:    item,
	}
}

func evictUpdate(removed []models.CacheEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseEvict,
		Step:    len(removed),
		Total:   len(removed),
		Message: fmt.Sprintf("Evicted %d entries", len(removed)),
		Data:    removed,
	}
}

func stateUpdate(s models.SyncState) ProgressUpdate {
	return ProgressUpdate{Phase: PhaseState, Step: 1, Total: 1, Message: s.String(), Data: s}
}

func flushUpdate(step, total int, rec models.VoteRecord, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ vote %+d for %s", step, total, rec.Vote, rec.SheepID)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ vote %+d for %s: %v", step, total, rec.Vote, rec.SheepID, err)
	}
	return ProgressUpdate{Phase: PhaseVoteFlush, Step: step, Total: total, Message: msg, Data: rec}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
