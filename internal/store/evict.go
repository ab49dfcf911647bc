package store

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// Evict deletes least recently accessed entries until the total size is at most budget.
//
// Entries never reported as played sort first. Ties keep enumeration order.
// A file that cannot be deleted is skipped and does not count towards the total.
// It returns the removed entries in deletion order.
func (s *Store) Evict(budget int64) ([]models.CacheEntry, error) {
	candidates, err := s.scan()
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range candidates {
		total += c.Size
	}
	if total <= budget {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	var removed []models.CacheEntry
	for _, c := range candidates {
		if total <= budget {
			break
		}
		if err := os.Remove(c.Path); err != nil {
			s.logger.Warn("skipping eviction", "path", c.Path, "err", err)
			continue
		}
		total -= c.Size
		removed = append(removed, c)
	}

	s.forget(removed)
	s.logger.Info("evicted", "count", len(removed), "remaining_bytes", total, "budget", budget)
	return removed, nil
}

// RecordAccess upserts the last-access time for a composite key and persists the map.
func (s *Store) RecordAccess(fullID string, when time.Time) error {
	err := s.updateAccess(func(access map[string]time.Time) bool {
		access[fullID] = when.UTC()
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to persist playback map: %w", err)
	}
	return nil
}

// AccessTimes returns a copy of the access-timestamp map as last persisted.
func (s *Store) AccessTimes() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadLocked()
	out := make(map[string]time.Time, len(s.access))
	for k, v := range s.access {
		out[k] = v
	}
	return out
}

func (s *Store) forget(removed []models.CacheEntry) {
	if len(removed) == 0 {
		return
	}

	err := s.updateAccess(func(access map[string]time.Time) bool {
		changed := false
		for _, e := range removed {
			if _, ok := access[e.FullID]; ok {
				delete(access, e.FullID)
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		s.logger.Warn("failed to persist playback map after eviction", "err", err)
	}
}

// updateAccess applies fn to the persisted access map while holding the
// playback file lock, and writes the map back when fn reports a change.
//
// Other processes sharing the cache root may have rewritten playback.json, so
// the map is re-read before fn sees it.
func (s *Store) updateAccess(fn func(access map[string]time.Time) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := shared.LockFile(s.playbackPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release playback lock", "err", err)
		}
	}()

	s.reloadLocked()
	if !fn(s.access) {
		return nil
	}
	return shared.WriteJSONAtomic(s.playbackPath(), s.access)
}

// reloadLocked replaces the in-memory map with playback.json. An unreadable
// file keeps the current map. Callers hold mu.
func (s *Store) reloadLocked() {
	fresh := make(map[string]time.Time)
	if err := shared.ReadJSON(s.playbackPath(), &fresh); err != nil {
		s.logger.Warn("keeping in-memory playback map", "err", err)
		return
	}
	s.access = fresh
}
